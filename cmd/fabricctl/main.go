// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command fabricctl is a small driver that exercises the transport
// fabric end to end: it builds a kernel demo endpoint, submits a handful
// of commands, runs the worker side, drains reports, and (with -flood)
// runs the native flood scenario and prints its verification stats. It
// exists to give the endpoint/runtime/scenario/layout packages a
// concrete, runnable caller.
package main

import (
	"flag"
	"fmt"
	"os"

	"code.hybscloud.com/fabric/codec/kerneldemo"
	"code.hybscloud.com/fabric/endpoint"
	"code.hybscloud.com/fabric/port"
	"code.hybscloud.com/fabric/runtime"
	"code.hybscloud.com/fabric/scenario"
)

func main() {
	flood := flag.Int("flood", 0, "run the native flood scenario with this many frames instead of the kernel demo")
	flag.Parse()

	if *flood > 0 {
		if err := runFlood(*flood); err != nil {
			fmt.Fprintln(os.Stderr, "fabricctl:", err)
			os.Exit(1)
		}
		return
	}
	if err := runKernelDemo(); err != nil {
		fmt.Fprintln(os.Stderr, "fabricctl:", err)
		os.Exit(1)
	}
}

func runKernelDemo() error {
	spec := endpoint.Spec{
		LosslessCapacity:   64 * 1024,
		BestEffortCapacity: 64 * 1024,
		CoalesceCapacity:   256,
		ReplyCapacity:      64 * 1024,
		ReplyClass:         port.Lossless,
		RingMagic:          0xfab71c,
	}
	sched, worker, desc, err := endpoint.BuildService[kerneldemo.Cmd, kerneldemo.Rep](spec, kerneldemo.Codec{})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	fmt.Printf("endpoint layout: %d ports, %d slot pools\n", len(desc.Ports), len(desc.SlotPools))

	commands := []kerneldemo.Cmd{
		{Kind: kerneldemo.CmdLoadRom, Bytes: []byte("cartridge-bytes")},
		{Kind: kerneldemo.CmdTick, Purpose: kerneldemo.TickDisplay, Budget: 70224, Group: 1},
		{Kind: kerneldemo.CmdSetInputs, Group: 2},
		{Kind: kerneldemo.CmdTerminate, Group: 3},
	}
	for i := range commands {
		outcome, err := sched.Submit(&commands[i])
		if err != nil {
			return fmt.Errorf("submit %d: %w", i, err)
		}
		fmt.Printf("submit %d: %v\n", i, outcomeString(outcome))
	}

	processed, err := worker.DrainCommands(len(commands), func(cmd kerneldemo.Cmd) {
		rep := respondTo(cmd)
		if _, err := worker.PublishReport(&rep); err != nil {
			fmt.Fprintln(os.Stderr, "fabricctl: publish report:", err)
		}
	})
	if err != nil && processed == 0 {
		return fmt.Errorf("drain commands: %w", err)
	}
	fmt.Printf("worker processed %d commands\n", processed)

	reports, err := sched.DrainReports(len(commands))
	if err != nil && len(reports) == 0 {
		return fmt.Errorf("drain reports: %w", err)
	}
	for _, rep := range reports {
		fmt.Printf("report: kind=%d group=%d\n", rep.Kind, rep.Group)
	}
	return nil
}

func respondTo(cmd kerneldemo.Cmd) kerneldemo.Rep {
	switch cmd.Kind {
	case kerneldemo.CmdLoadRom:
		return kerneldemo.Rep{Kind: kerneldemo.RepRomLoaded, BytesLen: uint32(len(cmd.Bytes))}
	default:
		return kerneldemo.Rep{Kind: kerneldemo.RepTickDone, Group: cmd.Group}
	}
}

func outcomeString(o port.Outcome) string {
	switch o {
	case port.Accepted:
		return "Accepted"
	case port.Coalesced:
		return "Coalesced"
	case port.Dropped:
		return "Dropped"
	case port.WouldBlock:
		return "WouldBlock"
	default:
		return "Outcome(unknown)"
	}
}

func runFlood(frames int) error {
	ch, err := runtime.NewNativeChannels()
	if err != nil {
		return fmt.Errorf("native channels: %w", err)
	}
	engine := scenario.NewEngine("flood", ch, scenario.Config{Mode: scenario.Flood, FrameCount: frames})
	consumer := runtime.NewNativeConsumer(ch)

	for !engine.Done() {
		engine.Poll()
		if n := len(consumer.DrainReadyFrames(1)); n > 0 {
			engine.ObserveDrain(n)
		}
		consumer.DrainEvents(frames)
	}
	// Drain whatever is left after the producer finishes.
	for {
		got := consumer.DrainReadyFrames(frames)
		if len(got) == 0 {
			break
		}
		engine.ObserveDrain(len(got))
	}
	consumer.DrainEvents(frames)

	stats := engine.Snapshot()
	fmt.Printf("flood: produced=%d would_block_ready=%d would_block_evt=%d max_ready_depth=%d\n",
		stats.Produced, stats.WouldBlockReady, stats.WouldBlockEvt, stats.MaxReadyDepth)
	return consumer.AssertReconciliation()
}
