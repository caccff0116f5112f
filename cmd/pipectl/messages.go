package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/msgpipe/internal/channel"
	"github.com/rs/zerolog/log"
)

// pipeMsg is the pipectl message set on top of the reserved channel types.
type pipeMsg uint8

const (
	msgConnect pipeMsg = channel.Connect
	msgText    pipeMsg = iota + 1
	msgEcho
	msgBye
)

func (m pipeMsg) String() string {
	switch m {
	case msgConnect:
		return "connect"
	case msgText:
		return "text"
	case msgEcho:
		return "echo"
	case msgBye:
		return "bye"
	default:
		return fmt.Sprintf("type(%d)", uint8(m))
	}
}

// echoHandler answers every text message with an echo of the same payload and
// ends the session on bye.
func echoHandler(msg channel.Message[pipeMsg], w channel.Writer[pipeMsg]) bool {
	switch msg.Type {
	case msgConnect:
		log.Info().Msg("pipectl.echo peer connected")
		return true
	case msgText:
		if err := w.Write(msgEcho, msg.Payload); err != nil {
			log.Warn().Err(err).Msg("pipectl.echo write failed")
			return false
		}
		return true
	case msgBye:
		_ = w.Write(msgBye, nil)
		return false
	default:
		log.Debug().Str("type", msg.Type.String()).Msg("pipectl.echo ignored message")
		return true
	}
}

// printer writes echo replies to out and ends the session on bye.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) handle(msg channel.Message[pipeMsg], _ channel.Writer[pipeMsg]) bool {
	switch msg.Type {
	case msgEcho, msgText:
		p.mu.Lock()
		fmt.Fprintf(p.out, "< %s\n", msg.Payload)
		p.mu.Unlock()
		return true
	case msgBye:
		return false
	default:
		return true
	}
}
