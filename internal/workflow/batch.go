package workflow

import (
	"context"
	"strings"
	"time"
)

// Chunk splits ids into consecutive groups of size. A group is closed as soon
// as it holds size ids; no empty group is produced.
func Chunk(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var chunks [][]string
	var current []string
	for _, id := range ids {
		current = append(current, id)
		if len(current) >= size {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// tankIDs reads the key column of the tank list, skipping blanks
func (o *Orchestrator) tankIDs(ctx context.Context) ([]string, error) {
	records, err := o.store.ReadRecords(ctx, o.cfg.Tanks)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if id := strings.TrimSpace(rec[o.cfg.TankKey]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SendBatch mails the tank list to the report service, one message per chunk,
// and returns the number of messages sent.
func (o *Orchestrator) SendBatch(ctx context.Context) (int, error) {
	o.setState(StateSendBatch)
	return o.sendBatch(ctx)
}

func (o *Orchestrator) sendBatch(ctx context.Context) (int, error) {
	ids, err := o.tankIDs(ctx)
	if err != nil {
		return 0, err
	}
	chunks := Chunk(ids, o.cfg.ChunkSize)
	o.log.Infof("Requesting %d tanks in %d messages", len(ids), len(chunks))

	sent := 0
	for i, chunk := range chunks {
		if i > 0 && o.cfg.ChunkPause > 0 {
			o.clock.Sleep(o.cfg.ChunkPause)
		}
		if err := o.mail.Send(ctx, strings.Join(chunk, "\n")); err != nil {
			o.log.Errorf("Sending chunk %d of %d failed: %v", i+1, len(chunks), err)
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Wait gives the report service time to answer. It always runs to completion.
func (o *Orchestrator) Wait() {
	o.setState(StateWait)
	o.log.Infof("Sleeping %v before checking mail", o.cfg.Wait)
	o.clock.Sleep(o.cfg.Wait)
}

// cutoff is the oldest receive time a qualifying reply may have
func (o *Orchestrator) cutoff() time.Time {
	return o.clock.Now().Add(-o.cfg.FreshnessWindow)
}

// CountReplies counts the qualifying replies currently in the mailbox
func (o *Orchestrator) CountReplies(ctx context.Context) (int, error) {
	messages, err := o.mail.List(ctx, o.cfg.Marker, o.cutoff())
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// CheckCount compares the replies received against sent. When fewer arrived,
// the batch is sent once more and the run waits again. It reports whether
// that corrective cycle ran.
func (o *Orchestrator) CheckCount(ctx context.Context, sent int) (bool, error) {
	o.setState(StateCheckCount)

	replies, err := o.CountReplies(ctx)
	if err != nil {
		return false, err
	}
	o.log.Infof("Received %d replies for %d requests", replies, sent)
	if replies >= sent {
		return false, nil
	}

	o.setState(StateReSendOnce)
	if _, err := o.sendBatch(ctx); err != nil {
		return true, err
	}
	o.Wait()
	return true, nil
}
