// Package racetime parses and formats the race-clock strings carried by the
// upstream timing source. Raw values look like "00:01:23.4560000" and are
// zero padded, so their lexical order matches their numeric order. All
// arithmetic runs on decimals; times are truncated for display, never rounded.
package racetime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const secondsPerMinute = 60

var (
	dec3600 = decimal.NewFromInt(3600)
	dec60   = decimal.NewFromInt(60)
	dec10   = decimal.NewFromInt(10)
)

// Parse converts a raw race-clock string into seconds. The empty string
// parses to zero, matching the source's representation of "no time yet".
func Parse(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return decimal.Decimal{}, fmt.Errorf("malformed race time %q", raw)
	}

	seconds, err := decimal.NewFromString(parts[len(parts)-1])
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed race time %q: %w", raw, err)
	}
	if len(parts) >= 2 {
		minutes, err := strconv.Atoi(parts[len(parts)-2])
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("malformed race time %q: %w", raw, err)
		}
		seconds = seconds.Add(decimal.NewFromInt(int64(minutes)).Mul(dec60))
	}
	if len(parts) == 3 {
		hours, err := strconv.Atoi(parts[0])
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("malformed race time %q: %w", raw, err)
		}
		seconds = seconds.Add(decimal.NewFromInt(int64(hours)).Mul(dec3600))
	}
	return seconds, nil
}

// Seconds is a lenient variant of Parse used when sorting competitors; a
// value the source produced but we cannot read sorts as zero rather than
// aborting the whole ordering.
func Seconds(raw string) decimal.Decimal {
	d, err := Parse(raw)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}

// Format renders a raw race-clock string for display: leading zero hour and
// minute segments are stripped and the fractional part is truncated to three
// decimal places. "00:01:23.4560000" becomes "1:23.456".
func Format(raw string) string {
	return format(raw, 3)
}

// Display renders a raw race-clock string with a single fractional digit,
// used for per-lap splits on the viewer side.
func Display(raw string) string {
	return format(raw, 1)
}

func format(raw string, places int) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, ":")
	out := make([]string, 0, len(parts))
	foundNonzero := false
	for i, part := range parts {
		last := i == len(parts)-1
		if !last {
			num, err := strconv.Atoi(part)
			if err != nil {
				num = 0
			}
			if !foundNonzero && num == 0 {
				continue
			}
			foundNonzero = true
			out = append(out, strconv.Itoa(num))
			continue
		}
		if dot := strings.IndexByte(part, '.'); dot != -1 {
			intPart := part[:dot]
			decPart := part[dot+1:]
			if len(decPart) > places {
				decPart = decPart[:places]
			}
			if !foundNonzero {
				intPart = stripLeadingZeros(intPart)
			}
			out = append(out, intPart+"."+decPart)
		} else {
			if !foundNonzero {
				part = stripLeadingZeros(part)
			}
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}

func stripLeadingZeros(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// Canonical renders seconds back into the zero-padded "HH:MM:SS.fff" layout
// the source uses, truncating the fraction to three decimal places. It is the
// inverse of Parse for the cumulative splits we compute ourselves.
func Canonical(d decimal.Decimal) string {
	if d.IsNegative() {
		d = decimal.Zero
	}
	d = d.Truncate(3)
	whole := d.IntPart()
	hours := whole / 3600
	minutes := (whole % 3600) / secondsPerMinute
	secs := d.Sub(decimal.NewFromInt(hours*3600 + minutes*secondsPerMinute))

	// Truncate above guarantees StringFixed does not round here.
	rendered := secs.StringFixed(3)
	if secs.LessThan(dec10) {
		rendered = "0" + rendered
	}
	return fmt.Sprintf("%02d:%02d:%s", hours, minutes, rendered)
}

// Gap renders the positive difference between two times as a display string,
// e.g. "+4.2". Used for viewer-side gap fields.
func Gap(behind, ahead decimal.Decimal) string {
	diff := behind.Sub(ahead)
	if diff.IsNegative() {
		diff = decimal.Zero
	}
	return "+" + diff.Truncate(1).String()
}
