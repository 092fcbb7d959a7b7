package service

import (
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"

	"github.com/apscustody/labcustody/internal/primitives"
	"github.com/apscustody/labcustody/internal/resolver"
)

// VerifySelectiveDisclosure checks a hash commitment of the form
// SHA-256(contentKey ∥ "|" ∥ sorted,comma,joined,subset) against claimedHex.
//
// This is a placeholder demo check, not a selective-disclosure proof: it
// proves the caller knows the content key and agrees on which fields are
// in `subset`, nothing more — it does not prove any property about the
// plaintext content of those fields. Callers must not treat a match as
// cryptographic selective disclosure.
func (s *Service) VerifySelectiveDisclosure(reportID, requesterID string, subset []string, claimedHex string) (bool, *resolver.DenialError) {
	key, _, denyErr := s.resolver.ResolveKey(requesterID, reportID)
	if denyErr != nil {
		return false, denyErr
	}
	defer primitives.Zero(key)

	sorted := append([]string(nil), subset...)
	sort.Strings(sorted)

	msg := make([]byte, 0, len(key)+1+len(strings.Join(sorted, ",")))
	msg = append(msg, key...)
	msg = append(msg, '|')
	msg = append(msg, []byte(strings.Join(sorted, ","))...)

	computed := fmt.Sprintf("%x", primitives.SHA256(msg))
	return subtle.ConstantTimeCompare([]byte(computed), []byte(claimedHex)) == 1, nil
}
