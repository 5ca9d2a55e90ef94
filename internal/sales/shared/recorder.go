package shared

// Recorder receives lifecycle events for metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	DocumentAllocated(docType string)
	StatusChanged(entity, status string)
	PaymentRecorded(paymentStatus string, amount float64)
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) DocumentAllocated(string)        {}
func (NopRecorder) StatusChanged(string, string)    {}
func (NopRecorder) PaymentRecorded(string, float64) {}
