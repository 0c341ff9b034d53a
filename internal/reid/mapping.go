package reid

import "player-reid-go/pkg/models"

// Apply возвращает новый список детекций, в котором идентификаторы из
// mapping заменены на сопоставленные. Идентификаторы без сопоставления и
// детекции без идентификатора переносятся без изменений. Результат не
// разделяет память с входом.
func Apply(detections []models.Detection, mapping Mapping) []models.Detection {
	out := make([]models.Detection, len(detections))
	for i, det := range detections {
		if det.Embedding != nil {
			det.Embedding = append([]float64(nil), det.Embedding...)
		}
		if det.Identity != nil {
			if target, ok := mapping[*det.Identity]; ok {
				det = det.WithIdentity(target)
			} else {
				det = det.WithIdentity(*det.Identity)
			}
		}
		out[i] = det
	}
	return out
}
