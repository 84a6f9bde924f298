package explain

import "errors"

// Reasons an explanation may be absent. None of them fail a prediction.
var (
	ErrInvalidInput   = errors.New("invalid explanation input")
	ErrDegenerate     = errors.New("saliency has no usable dynamic range")
	ErrOutputRejected = errors.New("heatmap output rejected")
	ErrInternal       = errors.New("internal explanation failure")
)
