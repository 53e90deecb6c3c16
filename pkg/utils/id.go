package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateJobID generates a job ID with a timestamp prefix, so IDs sort
// roughly by creation time
func GenerateJobID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("job-%s-%s", timestamp, uuid.NewString()[:8])
}

// GenerateRequestID generates a random request ID
func GenerateRequestID() string {
	return uuid.NewString()
}
