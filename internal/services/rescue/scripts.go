package rescue

import (
	"strings"

	"github.com/litperpro/litper/internal/models"
)

var callScripts = map[models.NoveltyType]string{
	models.NoveltyNoEstaba: "Hola {nombre}, le hablamos de Litper por su pedido con guía {guia} de {transportadora}. " +
		"El mensajero pasó pero no encontró a nadie en la dirección. " +
		"¿En qué horario podemos volver a intentar la entrega en {ciudad}?",
	models.NoveltyDireccionErrada: "Hola {nombre}, le hablamos de Litper por su pedido con guía {guia}. " +
		"{transportadora} reporta que la dirección está incompleta o errada. " +
		"¿Nos confirma la dirección exacta con barrio y puntos de referencia en {ciudad}?",
	models.NoveltyRechazado: "Hola {nombre}, le hablamos de Litper por su pedido con guía {guia}. " +
		"{transportadora} nos indica que el pedido fue rechazado al momento de la entrega. " +
		"¿Nos puede contar qué pasó? Si hubo algún inconveniente podemos ayudarle a resolverlo.",
	models.NoveltyNoContesta: "Hola {nombre}, le hablamos de Litper por su pedido con guía {guia}. " +
		"El mensajero de {transportadora} intentó comunicarse sin éxito. " +
		"¿Cuál es el mejor número y horario para coordinar la entrega en {ciudad}?",
	models.NoveltyZonaDificil: "Hola {nombre}, le hablamos de Litper por su pedido con guía {guia}. " +
		"{transportadora} no pudo llegar a su dirección por condiciones de acceso. " +
		"¿Podemos entregarlo en una dirección alterna o en una oficina de {transportadora} en {ciudad}?",
	models.NoveltyPagoPendiente: "Hola {nombre}, le hablamos de Litper por su pedido con guía {guia}. " +
		"Su pedido es contra entrega y el pago no estaba listo cuando pasó {transportadora}. " +
		"¿Cuándo podemos programar de nuevo la entrega en {ciudad}?",
	models.NoveltyDanado: "Hola {nombre}, le hablamos de Litper por su pedido con guía {guia}. " +
		"{transportadora} reporta un daño en el paquete. " +
		"Queremos ofrecerle una solución: ¿prefiere reposición del producto o reembolso?",
}

// renderScript: шаблон по типу новедада; для типов без своего шаблона используется NO_ESTABA.
func renderScript(it *models.RescueItem) string {
	tpl, ok := callScripts[it.NoveltyType]
	if !ok {
		tpl = callScripts[models.NoveltyNoEstaba]
	}
	name := it.CustomerName
	if name == "" {
		name = "cliente"
	}
	city := it.DestinationCity
	if city == "" {
		city = "su ciudad"
	}
	carrier := string(it.Carrier)
	if it.Carrier == "" || it.Carrier == models.CarrierUnknown {
		carrier = "la transportadora"
	}
	r := strings.NewReplacer(
		"{nombre}", name,
		"{guia}", it.TrackingNumber,
		"{transportadora}", carrier,
		"{ciudad}", city,
	)
	return r.Replace(tpl)
}
