// Command mqttsn-loadgen drives a broker with N simulated UDP clients,
// each subscribing to its own topic and publishing to it on an interval,
// logging whatever comes back. A smoke test and rough throughput probe,
// not a protocol-conformance client.
//
// Grounded on the teacher's cmd/benchmark/main.go: one errgroup goroutine
// per simulated client, each connecting, subscribing, and publishing on
// a ticker. The teacher drives a real MQTT client library; MQTT-SN has
// none in this repo; this tool instead speaks the wire codec directly
// over a UDP socket, since that's the only "client" MQTT-SN has.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/golang-io/mqttsn/packet"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:1883", "broker UDP address")
	clients := flag.Int("clients", 10, "number of simulated clients")
	interval := flag.Duration("interval", time.Second, "publish interval per client")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *clients; i++ {
		i := i
		group.Go(func() error {
			if err := runClient(gctx, *addr, i, *interval); err != nil && gctx.Err() == nil {
				log.Printf("client %d: %v", i, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
}

func runClient(ctx context.Context, addr string, id int, interval time.Duration) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	clientID := []byte(fmt.Sprintf("loadgen-%d", id))
	if err := send(conn, &packet.Connect{Duration: 30, ClientID: clientID}); err != nil {
		return err
	}
	if _, err := recv(conn); err != nil {
		return fmt.Errorf("waiting for CONNACK: %w", err)
	}

	topic := fmt.Sprintf("loadgen/%d", id)
	if err := send(conn, &packet.Subscribe{Flags: packet.Flags{QoS: 0}, MsgID: 1, TopicName: topic}); err != nil {
		return err
	}
	reply, err := recv(conn)
	if err != nil {
		return fmt.Errorf("waiting for SUBACK: %w", err)
	}
	suback, ok := reply.(*packet.Suback)
	if !ok {
		return fmt.Errorf("expected SUBACK, got %T", reply)
	}

	go readLoop(id, conn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			msg := &packet.Publish{
				Flags:   packet.Flags{QoS: packet.QoS0},
				TopicID: suback.TopicID,
				Data:    []byte(fmt.Sprintf("hello from %d @ %s", id, time.Now().Format(time.RFC3339))),
			}
			if err := send(conn, msg); err != nil {
				return err
			}
		}
	}
}

func readLoop(id int, conn net.Conn) {
	buf := make([]byte, 1500)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		msg, err := packet.Decode(buf[:n])
		if err != nil {
			continue
		}
		if pub, ok := msg.(*packet.Publish); ok {
			log.Printf("client %d received on topic id %d: %s", id, pub.TopicID, pub.Data)
		}
	}
}

func send(conn net.Conn, msg packet.Message) error {
	frame, err := packet.Encode(msg)
	if err != nil {
		return err
	}
	_, err = conn.Write(frame)
	return err
}

func recv(conn net.Conn) (packet.Message, error) {
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return packet.Decode(buf[:n])
}
