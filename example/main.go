package main

import (
	"context"
	"time"

	"github.com/zhenzou/multisched"
)

func main() {

	heartbeat := multisched.ActionFunc("heartbeat", func(ctx context.Context) error {
		println("heartbeat:", time.Now().Format(time.RFC3339Nano))
		return nil
	})

	unit, err := multisched.NewUnit(heartbeat, 500*time.Millisecond,
		multisched.WithInitialDelay(1*time.Second))
	if err != nil {
		panic(err)
	}

	println(unit.String())

	if err := unit.Start(); err != nil {
		panic(err)
	}

	time.Sleep(5 * time.Second)

	// stop, and wait until the loop exited
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := unit.StopAndWait(ctx); err != nil {
		panic(err)
	}

	stats := unit.Stats()
	println("ticks:", stats.Ticks, "invocations:", stats.Launched)
}
