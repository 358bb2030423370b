package discovery

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

const pump = solana.PumpFunProgram

// notificationEvent wraps logs into a logsNotification RawEvent.
func notificationEvent(seq uint64, signature string, txErr interface{}, logs ...string) domain.RawEvent {
	payload, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": 1,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 4242},
				"value": map[string]interface{}{
					"signature": signature,
					"err":       txErr,
					"logs":      logs,
				},
			},
		},
	})
	return domain.RawEvent{
		Seq:        seq,
		Kind:       domain.EventNotification,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

// testMint derives a valid base58 address from a readable label.
func testMint(label string) string {
	sum := sha256.Sum256([]byte(label))
	return base58.Encode(sum[:])
}

// textCreateLogs is a pump.fun create that names the mint testMint(label) only in log text.
func textCreateLogs(label string) []string {
	return []string{
		fmt.Sprintf("Program %s invoke [1]", pump),
		"Program log: Instruction: Create",
		"Program log: mint=" + testMint(label),
		fmt.Sprintf("Program %s success", pump),
	}
}

func borshString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

// createEventLine encodes a CreateEvent as a "Program data:" log line.
func createEventLine(mint, curve, user []byte) string {
	var buf bytes.Buffer
	buf.Write(createEventDiscriminator[:])
	borshString(&buf, "Test Coin")
	borshString(&buf, "TEST")
	borshString(&buf, "https://example.invalid/meta.json")
	buf.Write(mint)
	buf.Write(curve)
	buf.Write(user)
	return "Program data: " + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// eventCreateLogs is a realistic create: the mint is only in the anchor event.
func eventCreateLogs(mint []byte) []string {
	return []string{
		"Program ComputeBudget111111111111111111111111111111 invoke [1]",
		"Program ComputeBudget111111111111111111111111111111 success",
		fmt.Sprintf("Program %s invoke [1]", pump),
		"Program log: Instruction: Create",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]",
		"Program log: Instruction: InitializeMint2",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success",
		createEventLine(mint, bytes.Repeat([]byte{2}, 32), bytes.Repeat([]byte{3}, 32)),
		fmt.Sprintf("Program %s consumed 120000 of 200000 compute units", pump),
		fmt.Sprintf("Program %s success", pump),
	}
}
