// internal/osdetect/ttl.go
// TTL to OS family mapping. Low confidence: hop counts and tuned stacks move TTLs.

package osdetect

import "github.com/aspnmy/recon_reporter/internal/models"

// ClassifyTTL maps an echo reply TTL to an OS family.
// Only the initial TTL and one hop below it are recognised.
func ClassifyTTL(ttl int) models.OSLabel {
	switch ttl {
	case 64, 63:
		return models.OSLinux
	case 128, 127:
		return models.OSWindows
	case 255, 254:
		return models.OSCisco
	default:
		return models.OSUnknown
	}
}
