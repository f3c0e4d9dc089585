package api

import (
	"strings"

	"AlphaNebula/internal/domain/models"
	xhttp "AlphaNebula/pkg/http"
)

func init() {
	xhttp.RegisterStringRule("ticker", "%s must be a ticker symbol", validTicker)
}

// validTicker accepts exchange symbols such as AAPL, 2317.TW, BRK-B or ^GSPC.
func validTicker(s string) bool {
	t := models.NormalizeTicker(s)
	if t == "" || len(t) > 32 {
		return false
	}
	return strings.IndexFunc(t, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune(".-^=:", r))
	}) < 0
}
