package models

// Progress is one event of a download's progress stream. BytesTotal is -1
// when the size is unknown.
type Progress struct {
	ItemID       string
	BytesWritten int64
	BytesTotal   int64
	Status       Status
	Handle       string
	Err          error
}

// Fraction returns the completed share in [0,1].
func (p Progress) Fraction() float64 {
	if p.Status == StatusDownloaded {
		return 1
	}
	if p.BytesTotal <= 0 {
		return 0
	}
	f := float64(p.BytesWritten) / float64(p.BytesTotal)
	if f > 1 {
		return 1
	}
	return f
}
