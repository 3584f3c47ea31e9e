package serial

import (
	"strconv"
	"strings"

	"obdscan/internal/models"
	"obdscan/internal/obd"
)

var negativeReplies = []string{"NO DATA", "NODATA", "UNABLE TO CONNECT", "ERROR", "STOPPED", "?"}

func isNegative(resp string) bool {
	upper := strings.ToUpper(resp)
	for _, n := range negativeReplies {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

// parseVoltage attempts to parse an ELM voltage response like "12.5V" into a float
func parseVoltage(response string) (float64, error) {
	response = strings.TrimSpace(strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(response)), "V"))
	return strconv.ParseFloat(response, 64)
}

func parseHexByte(s string) (byte, bool) {
	if len(s) != 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// hexTokens splits a line into its data bytes. CAN frame indexes ("0:")
// and the multi-frame length header ("014") are not bytes and are dropped.
func hexTokens(line string) []string {
	var out []string
	for _, f := range strings.Fields(line) {
		if _, ok := parseHexByte(f); ok {
			out = append(out, strings.ToUpper(f))
		}
	}
	return out
}

func containsToken(resp, token string) bool {
	for _, t := range hexTokens(resp) {
		if t == token {
			return true
		}
	}
	return false
}

func lines(resp string) []string {
	return strings.FieldsFunc(resp, func(r rune) bool { return r == '\r' || r == '\n' })
}

// parseELMResponseDTCs parses a mode 03 reply. On CAN the 43 is followed by
// the number of codes and the reply may span several frames; on the legacy
// protocols every line is "43" plus three code pairs, one line per ECU.
func parseELMResponseDTCs(resp string, can bool) []models.DTCEntry {
	results := []models.DTCEntry{}
	if isNegative(resp) {
		return results
	}
	seen := map[string]bool{}
	add := func(a, b byte) {
		code := obd.DecodeDTC(a, b)
		if code == "" || seen[code] {
			return
		}
		seen[code] = true
		results = append(results, obd.NewDTC(code))
	}

	if can {
		tokens := hexTokens(resp)
		for i := 0; i < len(tokens); i++ {
			if tokens[i] != "43" || i+1 >= len(tokens) {
				continue
			}
			count, _ := parseHexByte(tokens[i+1])
			j := i + 2
			for n := 0; n < int(count) && j+1 < len(tokens); n++ {
				a, _ := parseHexByte(tokens[j])
				b, _ := parseHexByte(tokens[j+1])
				add(a, b)
				j += 2
			}
			i = j - 1
		}
		return results
	}

	for _, line := range lines(resp) {
		tokens := hexTokens(line)
		if len(tokens) == 0 || tokens[0] != "43" {
			continue
		}
		for j := 1; j+1 < len(tokens); j += 2 {
			a, _ := parseHexByte(tokens[j])
			b, _ := parseHexByte(tokens[j+1])
			add(a, b)
		}
	}
	return results
}

// parsePIDResponse finds "<mode+40> <pid> data..." and decodes it.
func parsePIDResponse(resp string, pid obd.PID) (float64, bool) {
	if isNegative(resp) {
		return 0, false
	}
	mode := pid.ResponseMode()
	tokens := hexTokens(resp)
	for i := 0; i+1+pid.Size < len(tokens); i++ {
		if tokens[i] != mode || tokens[i+1] != pid.Code {
			continue
		}
		data := make([]byte, pid.Size)
		for k := range data {
			data[k], _ = parseHexByte(tokens[i+2+k])
		}
		return pid.Decode(data), true
	}
	return 0, false
}

// parseVIN extracts the 17 character VIN from a mode 09 PID 02 reply in
// either the CAN multi-frame or the legacy one-line-per-message form.
func parseVIN(resp string) string {
	if isNegative(resp) {
		return ""
	}
	tokens := hexTokens(resp)
	var sb strings.Builder
	for i := 0; i < len(tokens); i++ {
		// skip the "49 02 <seq>" message header
		if tokens[i] == "49" && i+2 < len(tokens) && tokens[i+1] == "02" {
			i += 2
			continue
		}
		b, _ := parseHexByte(tokens[i])
		if b >= '0' && b <= 'Z' {
			sb.WriteByte(b)
		}
	}
	vin := sb.String()
	if len(vin) > 17 {
		vin = vin[len(vin)-17:]
	}
	return vin
}

// countECUs counts the ECUs that answered a mode 09 request. Each ECU
// sends exactly one message with item number 01.
func countECUs(resp, mode string) int {
	n := 0
	for _, line := range lines(resp) {
		tokens := hexTokens(line)
		if len(tokens) > 2 && tokens[0] == mode && tokens[2] == "01" {
			n++
		}
	}
	return n
}
