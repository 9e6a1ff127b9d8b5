package ezca

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// SelectCA picks the CA whose friendly name or id is name. A blank name picks the only CA, or
// the first one when there are several.
func SelectCA(cas []CertificateAuthority, name string) (*CertificateAuthority, error) {
	if len(cas) == 0 {
		return nil, fmt.Errorf("no certificate authorities available: %w", ErrNotFound)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		ca := cas[0]
		return &ca, nil
	}
	ca, found := lo.Find(cas, func(ca CertificateAuthority) bool {
		return strings.EqualFold(ca.CAFriendlyName, name) || ca.CAID == name
	})
	if !found {
		names := lo.Map(cas, func(ca CertificateAuthority, _ int) string {
			return ca.CAFriendlyName
		})
		return nil, fmt.Errorf("no CA named %q in %v: %w", name, names, ErrNotFound)
	}
	return &ca, nil
}
