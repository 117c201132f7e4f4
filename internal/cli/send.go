package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/imkarma/taskplan/internal/bus"
)

var (
	sendNATS    string
	sendBatch   string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send [event-type] [json]",
	Short: "Send a lifecycle event to a running server over NATS",
	Long: `Publishes an event to a taskplan server and prints its reply.
The payload is read from the second argument, or from stdin when omitted.

  taskplan send task.create '{"title":"Write docs","priority":"high"}'
  taskplan send --batch complete '[{"taskId":"task-1"},{"taskId":"task-2"}]'`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendNATS, "nats", "", "NATS URL (overrides config)")
	sendCmd.Flags().StringVar(&sendBatch, "batch", "", "Send a batch for this operation; the payload is a JSON array")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "Reply timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var raw []byte
	switch {
	case sendBatch == "" && len(args) == 0:
		return fmt.Errorf("event type is required")
	case sendBatch == "" && len(args) == 2:
		raw = []byte(args[1])
	case sendBatch != "" && len(args) == 1:
		raw = []byte(args[0])
	case sendBatch != "" && len(args) == 2:
		return fmt.Errorf("--batch takes the operation from the flag; pass only the payload")
	default:
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	url := a.cfg.NATS.URL
	if sendNATS != "" {
		url = sendNATS
	}
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("taskplan-send"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	client := bus.NewClient(nc, a.cfg.NATS.SubjectPrefix, sendTimeout)
	ctx := context.Background()

	var reply json.RawMessage
	if sendBatch != "" {
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("batch payload must be a JSON array of objects: %w", err)
		}
		reply, err = client.SendBatch(ctx, sendBatch, items)
	} else {
		payload := map[string]any{}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("payload must be a JSON object: %w", err)
			}
		}
		reply, err = client.Send(ctx, args[0], payload)
	}
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, reply, "", "  "); err != nil {
		fmt.Println(string(reply))
		return nil
	}
	fmt.Println(out.String())
	return nil
}
