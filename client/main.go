// Command client is a bot that joins a room, readies up and plays every turn
// or pick it is asked for. It is meant for smoke-testing a running server.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/network"
)

type bot struct {
	conn  *websocket.Conn
	mutex sync.Mutex
	name  string
	id    int64
	rng   *rand.Rand
}

// send formats and sends a message to the WebSocket server.
func (b *bot) send(p network.Payload) error {
	data, err := network.Encode(p)
	if err != nil {
		return err
	}
	packet, err := network.EncodePacket(p.MsgID(), data)
	if err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.conn.WriteMessage(websocket.BinaryMessage, packet)
}

// react answers the events that ask this bot to act.
func (b *bot) react(event network.Payload) {
	switch e := event.(type) {
	case network.ClientID:
		b.id = e.ClientID
	case network.PhaseChanged:
		// sent on every join and after every session
		if e.Phase == "READY" {
			_ = b.send(network.Ready{})
		}
	case network.GameEvent:
		me := fmt.Sprintf("%s#%d", b.name, b.id)
		switch {
		case e.Text == "It's "+me+"'s turn":
			_ = b.send(network.Turn{})
		case strings.HasPrefix(e.Text, "Pick rock"):
			choices := []string{"rock", "paper", "scissors"}
			_ = b.send(network.Pick{Choice: choices[b.rng.Intn(len(choices))]})
		}
	case network.ReadyStatus:
		// turn mode waits for an explicit start
		if e.ClientID == b.id && e.Ready && !e.Quiet {
			_ = b.send(network.Start{})
		}
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	name := flag.String("name", "bot", "display name")
	roomName := flag.String("room", "", "room to create or join; empty stays in the lobby")
	flag.Parse()

	logger.Init(true)
	defer logger.Sync()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	b := &bot{conn: c, name: *name, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				logger.Log.Warnf("Received invalid packet of size %d", len(message))
				continue
			}
			event, err := network.DecodeEvent(packet.MsgID, packet.Data)
			if err != nil {
				logger.Log.Warnf("Undecodable event %d: %v", packet.MsgID, err)
				continue
			}
			logger.Log.Infof("<- %T %+v", event, event)
			b.react(event)
		}
	}()

	if err := b.send(network.Connect{Name: *name}); err != nil {
		logger.Log.Fatalf("Write error: %v", err)
	}
	if *roomName != "" {
		// creating fails if the room exists; joining covers that case
		_ = b.send(network.CreateRoom{Name: *roomName})
		_ = b.send(network.JoinRoom{Name: *roomName})
	}

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			_ = b.send(network.Heartbeat{})
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			_ = b.send(network.Disconnect{})
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Log.Infof("Write close error: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
