package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EvidenceSigner produces tamper-evident signatures for containment evidence.
// The signature binds the evidence to its incident, action type, snapshot
// content and wall-clock time; there is no update path for a signed record.
type EvidenceSigner struct {
	secretKey []byte
}

func NewEvidenceSigner(secretKey string) *EvidenceSigner {
	return &EvidenceSigner{
		secretKey: []byte(secretKey),
	}
}

// Sign computes an HMAC-SHA256 signature over the incident id, action,
// deterministically serialized snapshot and timestamp.
func (s *EvidenceSigner) Sign(incidentID, action string, snapshot map[string]interface{}, timestamp time.Time) string {
	payload := fmt.Sprintf("%s-%s-%s-%s",
		incidentID, action, serializeSnapshot(snapshot), timestamp.UTC().Format(time.RFC3339Nano))
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the signature and compares it in constant time.
func (s *EvidenceSigner) Verify(incidentID, action string, snapshot map[string]interface{}, timestamp time.Time, signature string) bool {
	expected := s.Sign(incidentID, action, snapshot, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// serializeSnapshot renders the snapshot deterministically. encoding/json
// sorts map keys, so equal snapshots always produce equal bytes.
func serializeSnapshot(snapshot map[string]interface{}) string {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return ""
	}
	return string(data)
}
