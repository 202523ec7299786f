package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/scrappyAI/toka/pkg/causal"
	"github.com/scrappyAI/toka/pkg/types"
)

func encodeCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("cluster: marshal command: %w", err)
	}
	return data, nil
}

// NewCommitEventCommand builds a Command that proposes appending header
// and payload to the event store on apply.
func NewCommitEventCommand(header causal.EventHeader, payload []byte) (Command, error) {
	data, err := json.Marshal(CommitEventPayload{
		EncodedHeader: causal.EncodeHeader(header),
		Payload:       payload,
	})
	if err != nil {
		return Command{}, fmt.Errorf("cluster: marshal commit_event payload: %w", err)
	}
	return Command{Kind: CommandCommitEvent, Data: data}, nil
}

// NewProcessMessageCommand builds a Command that proposes re-entering the
// kernel for msg on apply, tagged with requestID for idempotent replay.
func NewProcessMessageCommand(msg types.Message, requestID string) (Command, error) {
	data, err := json.Marshal(ProcessMessagePayload{Message: msg, RequestID: requestID})
	if err != nil {
		return Command{}, fmt.Errorf("cluster: marshal process_message payload: %w", err)
	}
	return Command{Kind: CommandProcessMessage, Data: data}, nil
}
