package rescue

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
)

var csvHeader = []string{
	"Guia", "Transportadora", "Cliente", "Telefono", "Ciudad", "Tipo Novedad",
	"Descripcion", "Dias Sin Mov", "Prioridad", "Probabilidad", "Estado", "Intentos",
}

// ExportQueueCSV выгружает живую очередь в порядке разбора; пустая очередь даёт только заголовок.
func (s *Service) ExportQueueCSV() string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	items := s.GetQueue(QueueFilter{})
	rows := make([][]string, 0, 1+len(items))
	rows = append(rows, csvHeader)
	for _, it := range items {
		rows = append(rows, []string{
			it.TrackingNumber,
			string(it.Carrier),
			it.CustomerName,
			it.CustomerPhone,
			it.DestinationCity,
			string(it.NoveltyType),
			it.NoveltyDescription,
			strconv.Itoa(it.DaysWithoutMovement),
			string(it.Priority),
			fmt.Sprintf("%.1f%%", it.RecoveryProbability*100),
			string(it.Status),
			strconv.Itoa(it.Attempts),
		})
	}
	// WriteAll сам делает Flush и возвращает w.Error()
	if err := w.WriteAll(rows); err != nil {
		slog.Error("rescue csv export failed", "error", err.Error())
	}
	return buf.String()
}
