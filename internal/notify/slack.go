// Package notify delivers the daily run summary to Slack. Delivery is
// best-effort: failures fall back to a local payload file and never
// affect pipeline correctness.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sora-lab/inga-quant/internal/i18n"
	"github.com/sora-lab/inga-quant/internal/watchlist"
	"github.com/sora-lab/inga-quant/pkg/httputil"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// Payload is the Slack webhook message body
type Payload struct {
	Text string `json:"text"`
}

// BuildPayload renders the run summary as a Slack message in the
// configured language.
func BuildPayload(
	tradeDate, action string,
	wfIC float64,
	nEligible int,
	noTradeReasons []string,
	top3 []watchlist.Entry,
	lang string,
) Payload {
	icon := ":no_entry:"
	if action == "TRADE" {
		icon = ":white_check_mark:"
	}

	var topLines []string
	for i, e := range top3 {
		if i >= 3 {
			break
		}
		namePart := ""
		if e.Name != "" && e.Name != e.Ticker {
			namePart = " " + e.Name
		}
		topLines = append(topLines, fmt.Sprintf("  %d. %s%s  score=%.4f  %s",
			i+1, e.Ticker, namePart, e.Score, e.ReasonShort))
	}
	topText := strings.Join(topLines, "\n")
	if topText == "" {
		topText = i18n.T("slack_none", lang)
	}

	var reasonLines []string
	for _, r := range noTradeReasons {
		reasonLines = append(reasonLines, "  • "+r)
	}
	reasonsText := strings.Join(reasonLines, "\n")
	if reasonsText == "" {
		reasonsText = i18n.T("slack_none", lang)
	}

	text := fmt.Sprintf("%s *%s*\n%s\n%s\n%s\n%s\n%s\n%s",
		icon,
		fmt.Sprintf(i18n.T("slack_title", lang), tradeDate),
		fmt.Sprintf(i18n.T("slack_action", lang), action),
		fmt.Sprintf(i18n.T("slack_metrics", lang), wfIC, nEligible),
		i18n.T("slack_top3_hd", lang),
		topText,
		i18n.T("slack_reasons_hd", lang),
		reasonsText,
	)
	return Payload{Text: text}
}

// Send POSTs the payload to the webhook. Returns true on success. When
// the webhook is unset or the POST fails, the payload is written to
// fallbackPath instead. Never returns an error.
func Send(ctx context.Context, client *httputil.Client, webhookURL string, payload Payload, fallbackPath string, log *logger.Logger) bool {
	if webhookURL != "" {
		resp, err := client.PostJSON(ctx, webhookURL, payload)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode < 300 {
				log.Info("Slack notification sent successfully")
				return true
			}
			log.Warnf("Slack POST returned %d — writing fallback", resp.StatusCode)
		} else {
			log.Warnf("Slack POST failed: %v — writing fallback", err)
		}
	}

	if fallbackPath == "" {
		log.Warn("No fallback path provided and Slack send failed")
		return false
	}
	if err := writeFallback(fallbackPath, payload); err != nil {
		log.Warnf("Slack fallback write failed: %v", err)
		return false
	}
	log.Infof("Slack payload written to fallback: %s", fallbackPath)
	return false
}

func writeFallback(path string, payload Payload) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
