// Command cusim emulates a slot-car Control Unit over TCP (and optionally a
// serial port) so client software can be developed without hardware. Clients
// connect exactly as they would to a real device, for example with a
// socket://host:port serial URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/banshee-data/slotcar.sim/internal/config"
	"github.com/banshee-data/slotcar.sim/internal/cu"
	"github.com/banshee-data/slotcar.sim/internal/cuserver"
	"github.com/banshee-data/slotcar.sim/internal/monitoring"
	"github.com/banshee-data/slotcar.sim/internal/timeutil"
	buildinfo "github.com/banshee-data/slotcar.sim/internal/version"
)

var (
	listen     = flag.String("listen", "localhost:5000", "TCP listen address")
	serialPort = flag.String("serial-port", "", "serial device to also serve on (optional)")
	version    = flag.String("version", cu.DefaultVersion, "firmware version to report (4 characters)")
	simulate   = flag.Bool("simulate", false, "simulate racing cars generating timer events")
	cars       = flag.String("cars", "0,1", "comma-separated car addresses to simulate")
	lapTime    = flag.Float64("lap-time", cu.DefaultBaseLapTime, "base lap time in seconds")
	configPath = flag.String("config", "", "optional JSON race config file")
	verbose    = flag.Bool("verbose", false, "log every frame sent and received")
)

func main() {
	flag.Parse()
	monitoring.SetDebug(*verbose)
	log.Printf("cusim %s starting", buildinfo.String())

	if *listen == "" {
		log.Fatal("listen address is required")
	}

	cfg := config.EmptyRaceConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadRaceConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	// Explicit flags win over the config file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	firmware := cfg.GetVersion()
	if set["version"] {
		firmware = *version
	}
	if len(firmware) != 4 {
		log.Fatalf("invalid version %q: must be 4 characters", firmware)
	}

	baseLapTime := cfg.GetBaseLapTime()
	if set["lap-time"] {
		baseLapTime = *lapTime
	}

	carList := cfg.GetCars()
	if set["cars"] {
		var err error
		carList, err = parseCars(*cars)
		if err != nil {
			log.Fatalf("invalid cars list: %v", err)
		}
	}

	clock := timeutil.RealClock{}
	state := cu.NewState(firmware, clock)
	state.SetDisplay(cfg.GetDisplay())

	server := cuserver.New(state, cuserver.Options{
		Clock:         clock,
		RedInterval:   cfg.GetRedInterval(),
		GreenDuration: cfg.GetGreenDuration(),
	})

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx, ln); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	if *serialPort != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ServeSerial(ctx, *serialPort, cuserver.PortOptions{}); err != nil {
				log.Printf("serial transport error: %v", err)
			}
		}()
	}

	var sim *cu.Simulator
	if *simulate {
		sim = cu.NewSimulator(state, clock, cu.SimulatorOptions{
			BaseLapTime: baseLapTime,
			Variation:   cfg.GetVariation(),
			Resolution:  cfg.GetResolution(),
			Seed:        cfg.GetSeed(),
		})
		sim.Start(carList, false)
		log.Printf("simulation enabled (cars %v, base lap time %.1fs)", carList, baseLapTime)
	}

	log.Printf("emulating control unit firmware %s on %s", firmware, *listen)

	<-ctx.Done()
	if sim != nil {
		sim.Stop()
	}
	wg.Wait()
	log.Print("control unit emulator stopped")
}

// parseCars parses a comma-separated list of controller addresses.
func parseCars(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	cars := make([]int, 0, len(parts))
	for _, p := range parts {
		car, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("failed to parse car address %q: %v", p, err)
		}
		if car < 0 || car >= cu.Controllers {
			return nil, fmt.Errorf("car address %d out of range [0, %d]", car, cu.Controllers-1)
		}
		cars = append(cars, car)
	}
	return cars, nil
}
