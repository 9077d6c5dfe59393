package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ad/go-python-coach/internal/fsm"
	"github.com/ad/go-python-coach/internal/models"
)

// MaxMessageLength keeps replies under Telegram's 4096-character limit.
const MaxMessageLength = 4000

const progressBarWidth = 20

// FormatStatus renders the /status reply for a learner.
func FormatStatus(record *models.ProgressRecord, catalog StageCatalog) string {
	total := catalog.Len()
	percent := 0.0
	if total > 0 {
		percent = float64(record.Stage) * 100 / float64(total)
	}

	var sb strings.Builder
	sb.WriteString("📊 وضعیت یادگیری\n\n")
	fmt.Fprintf(&sb, "📅 مرحله فعلی: %d/%d\n", record.Stage, total)

	switch record.State(total) {
	case fsm.StateDone:
		sb.WriteString("🏁 همه مراحل کامل شده‌اند\n")
	case fsm.StateLinkPending:
		fmt.Fprintf(&sb, "🔗 در انتظار لینک گیت‌هاب برای «%s»\n", catalog.StageName(record.Stage))
	default:
		fmt.Fprintf(&sb, "📝 در انتظار پاسخ آزمون «%s»\n", catalog.StageName(record.Stage))
	}

	fmt.Fprintf(&sb, "✅ لینک‌های ثبت‌شده: %d\n\n", len(record.SubmittedLinks))
	sb.WriteString(ProgressBar(percent))
	return sb.String()
}

// ProgressBar draws a fixed-width bar followed by the percentage.
func ProgressBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent * progressBarWidth / 100)
	return strings.Repeat("▓", filled) + strings.Repeat("░", progressBarWidth-filled) + fmt.Sprintf(" %.1f%%", percent)
}

// SplitMessage cuts text into parts of at most maxLen characters, preferring
// paragraph, then line, then sentence boundaries.
func SplitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			parts = append(parts, string(runes))
			break
		}

		window := string(runes[:maxLen])
		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, "\n")
		}
		if cut <= 0 {
			cut = strings.LastIndex(window, ". ")
			if cut > 0 {
				cut++
			}
		}

		var head string
		if cut <= 0 {
			head = window
		} else {
			head = window[:cut]
		}

		if trimmed := strings.TrimSpace(head); trimmed != "" {
			parts = append(parts, trimmed)
		}
		runes = []rune(strings.TrimLeft(string(runes[utf8.RuneCountInString(head):]), " \n"))
	}
	return parts
}
