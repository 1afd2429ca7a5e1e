package forecast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint derives the deterministic identity of a trained-model
// configuration: same symbol and core hyperparameters, same fingerprint. It
// keys the checkpoint store and the job controller's concurrency table.
func Fingerprint(symbol string, cfg ModelConfig) string {
	key := fmt.Sprintf("%s|L=%d|H=%d|E=%d|B=%d",
		strings.ToUpper(strings.TrimSpace(symbol)),
		cfg.SequenceLength, cfg.DaysToPredict, cfg.Epochs, cfg.BatchSize)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
