package discovery

import (
	"encoding/base64"
	"regexp"
	"strings"

	"solana-sniper/internal/solana"
)

// DefaultMarker identifies a pump.fun token launch in program logs.
const DefaultMarker = "Instruction: Create"

const programDataPrefix = "Program data: "

// CreateMatch is the result of a successful log scan.
type CreateMatch struct {
	Mint     string       // empty when no mint could be read from the logs
	Event    *CreateEvent // nil when only the log text matched
	LogIndex int          // index of the marker line
}

// CreateParser finds launch instructions of one program in transaction logs.
type CreateParser struct {
	programID   string
	marker      string
	mintPattern *regexp.Regexp
}

// NewCreateParser creates a parser for programID. An empty marker selects DefaultMarker.
func NewCreateParser(programID, marker string) *CreateParser {
	if marker == "" {
		marker = DefaultMarker
	}
	return &CreateParser{
		programID:   programID,
		marker:      marker,
		mintPattern: regexp.MustCompile(`mint=([1-9A-HJ-NP-Za-km-z]{32,44})(?:[^1-9A-HJ-NP-Za-km-z]|$)`),
	}
}

// Parse reports whether a marker line appears inside the program's invocation
// (including inner calls it makes) and extracts the mint when possible.
// The mint comes from a CreateEvent if one was emitted, else from "mint=" log text
// naming a valid 32-byte address.
func (p *CreateParser) Parse(logs []string) (*CreateMatch, bool) {
	var stack []string
	var match *CreateMatch
	var event *CreateEvent
	var textMint string

	for i, line := range logs {
		if program, ok := invokedProgram(line); ok {
			stack = append(stack, program)
			continue
		}
		if _, ok := exitedProgram(line); ok {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if !p.inScope(stack) {
			continue
		}

		if match == nil && strings.Contains(line, p.marker) {
			match = &CreateMatch{LogIndex: i}
		}

		if strings.HasPrefix(line, programDataPrefix) {
			if event == nil {
				event = decodeProgramData(strings.TrimPrefix(line, programDataPrefix))
			}
			continue
		}

		if textMint == "" {
			if m := p.mintPattern.FindStringSubmatch(line); m != nil {
				if _, err := solana.DecodePublicKey(m[1]); err == nil {
					textMint = m[1]
				}
			}
		}
	}

	if match == nil {
		return nil, false
	}
	if event != nil {
		match.Event = event
		match.Mint = event.Mint
	} else {
		match.Mint = textMint
	}
	return match, true
}

func (p *CreateParser) inScope(stack []string) bool {
	for _, program := range stack {
		if program == p.programID {
			return true
		}
	}
	return false
}

// invokedProgram parses "Program <id> invoke [n]".
func invokedProgram(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[0] == "Program" && fields[2] == "invoke" {
		return fields[1], true
	}
	return "", false
}

// exitedProgram parses "Program <id> success" and "Program <id> failed: ...".
func exitedProgram(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[0] == "Program" &&
		(fields[2] == "success" || strings.HasPrefix(fields[2], "failed")) {
		return fields[1], true
	}
	return "", false
}

func decodeProgramData(encoded string) *CreateEvent {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil
	}
	ev, err := decodeCreateEvent(data)
	if err != nil {
		return nil
	}
	return ev
}
