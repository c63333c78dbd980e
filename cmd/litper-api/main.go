package main

import (
	"context"
	"errors"
	"log/slog"
)

func main() {
	app := mustBootstrapAPI()
	defer app.Close()

	if err := runAPI(app.ctx, app.opts, app.api.Router(), app.consumer, app.onChecked); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("litper-api stopped", "error", err.Error())
		panic(err)
	}
}
