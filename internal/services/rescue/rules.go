package rescue

import (
	"math"

	"github.com/litperpro/litper/internal/models"
	"github.com/litperpro/litper/internal/textfold"
)

type noveltyRule struct {
	novelty  models.NoveltyType
	keywords []string
}

// noveltyRules проверяются по порядку, первое совпадение выигрывает.
// Ключевые слова уже в нижнем регистре и без диакритики.
var noveltyRules = []noveltyRule{
	{models.NoveltyDanado, []string{"danad", "averiad", "mojad", "paquete roto", "caja rota", "producto roto", "damaged"}},
	{models.NoveltyRechazado, []string{"rechaz", "no acepta", "no lo quiere", "no quiere recibir", "refused", "rejected"}},
	{models.NoveltyDireccionErrada, []string{"direccion errada", "direccion incorrecta", "direccion incompleta", "direccion no existe", "no existe la direccion", "wrong address"}},
	{models.NoveltyPagoPendiente, []string{"pago", "dinero", "contraentrega", "contra entrega", "recaudo", "payment"}},
	{models.NoveltyZonaDificil, []string{"zona roja", "zona dificil", "dificil acceso", "orden publico", "zona de riesgo", "no hay cobertura"}},
	{models.NoveltyNoContesta, []string{"no contesta", "no responde", "telefono apagado", "celular apagado", "fuera de servicio", "no answer"}},
	{models.NoveltyNoEstaba, []string{"no estaba", "ausente", "cerrad", "nadie", "no se encontr", "not home"}},
}

// baseProbability: базовая вероятность спасения по типу новедада, без учёта времени и попыток.
var baseProbability = map[models.NoveltyType]float64{
	models.NoveltyDireccionErrada: 0.90,
	models.NoveltyNoEstaba:        0.85,
	models.NoveltyNoContesta:      0.70,
	models.NoveltyPagoPendiente:   0.65,
	models.NoveltyZonaDificil:     0.55,
	models.NoveltyOtro:            0.50,
	models.NoveltyRechazado:       0.30,
	models.NoveltyDanado:          0.20,
}

const (
	minProbability = 0.05
	maxProbability = 0.95

	graceDays         = 3
	dailyDecay        = 0.05
	perAttemptPenalty = 0.10
)

// ClassifyNovelty returns explicit when it is a known type, otherwise infers it from the description.
func ClassifyNovelty(explicit models.NoveltyType, description string) models.NoveltyType {
	if explicit.Valid() {
		return explicit
	}
	text := textfold.Fold(description)
	if text == "" {
		return models.NoveltyOtro
	}
	for _, r := range noveltyRules {
		if textfold.ContainsAny(text, r.keywords) {
			return r.novelty
		}
	}
	return models.NoveltyOtro
}

func PriorityFor(daysWithoutMovement int) models.RescuePriority {
	switch {
	case daysWithoutMovement > 5:
		return models.PriorityCritical
	case daysWithoutMovement > 3:
		return models.PriorityHigh
	case daysWithoutMovement > 1:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// RecoveryProbability: base × (1 − 0.05·max(0, days−3)) × (1 − 0.10·attempts), clamped to [0.05, 0.95].
func RecoveryProbability(n models.NoveltyType, daysWithoutMovement, attempts int) float64 {
	base, ok := baseProbability[n]
	if !ok {
		base = baseProbability[models.NoveltyOtro]
	}
	p := base *
		(1 - dailyDecay*float64(max(0, daysWithoutMovement-graceDays))) *
		(1 - perAttemptPenalty*float64(max(0, attempts)))
	return math.Min(maxProbability, math.Max(minProbability, p))
}

func recompute(it *models.RescueItem) {
	it.Priority = PriorityFor(it.DaysWithoutMovement)
	it.RecoveryProbability = RecoveryProbability(it.NoveltyType, it.DaysWithoutMovement, it.Attempts)
}
