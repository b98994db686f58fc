package appindex

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// EmptySignature is the signature of an empty result set
const EmptySignature = ""

// Signature fingerprints a result set by its ids, ignoring order.
// Renderers compare signatures to skip redrawing identical results.
func Signature(apps []AppRecord) string {
	if len(apps) == 0 {
		return EmptySignature
	}
	ids := make([]string, len(apps))
	for i, a := range apps {
		ids[i] = a.ID
	}
	slices.Sort(ids)

	d := xxhash.New()
	for _, id := range ids {
		_, _ = d.WriteString(id)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
