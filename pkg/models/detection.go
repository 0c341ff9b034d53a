package models

// BBox задает прямоугольник (x1, y1, x2, y2) в пикселях исходного кадра
type BBox [4]float64

// Width ширина прямоугольника
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height высота прямоугольника
func (b BBox) Height() float64 { return b[3] - b[1] }

// Valid проверяет, что x1 < x2 и y1 < y2
func (b BBox) Valid() bool {
	return b[0] < b[2] && b[1] < b[3]
}

// Detection представляет одно наблюдение игрока в одном кадре.
// Identity и Embedding отсутствуют до обработки трекером.
type Detection struct {
	Frame      int       `json:"frame"`               // Индекс кадра в потоке
	BBox       BBox      `json:"bbox"`                // Координаты рамки
	Confidence float64   `json:"confidence"`          // Уверенность детектора [0,1]
	Identity   *int      `json:"id,omitempty"`        // Идентификатор внутри потока
	Embedding  []float64 `json:"embedding,omitempty"` // Вектор внешнего вида
}

// HasIdentity сообщает, назначен ли идентификатор
func (d Detection) HasIdentity() bool {
	return d.Identity != nil
}

// IdentityOr возвращает идентификатор или значение по умолчанию
func (d Detection) IdentityOr(def int) int {
	if d.Identity == nil {
		return def
	}
	return *d.Identity
}

// WithIdentity возвращает копию записи с новым идентификатором
func (d Detection) WithIdentity(id int) Detection {
	d.Identity = &id
	return d
}

// RawDetection результат детектора для одного объекта в кадре
type RawDetection struct {
	Class      int     `json:"class"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}
