// Command dsort runs one or more processing elements of a distributed
// string sort: DistributedMergeSort by default, or RQuick/SpaceEfficientSort
// depending on flags, either simulated in a single process or as one PE
// of a real job talking over NATS.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmehnert/distributed-string-sorting/internal/config"
	"github.com/pmehnert/distributed-string-sorting/internal/xlog"
	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
	"github.com/pmehnert/distributed-string-sorting/pkg/comm/local"
	"github.com/pmehnert/distributed-string-sorting/pkg/comm/natscomm"
	"github.com/pmehnert/distributed-string-sorting/pkg/dms"
	"github.com/pmehnert/distributed-string-sorting/pkg/rquick"
	"github.com/pmehnert/distributed-string-sorting/pkg/ses"
	"github.com/pmehnert/distributed-string-sorting/pkg/splitter"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
	"github.com/pmehnert/distributed-string-sorting/pkg/telemetry/promsink"
)

func main() {
	var flagConfigFile, flagEnvFile, flagInputFile, flagAddr, flagGroupSizes, flagNatsGroup, flagVariant string
	var flagRank, flagSize int
	var flagGops, flagLogDate bool

	flag.StringVar(&flagConfigFile, "config", "./config.json", "overwrite the default config with `config.json`")
	flag.StringVar(&flagEnvFile, "env", "./.env", "load transport credentials from `.env`")
	flag.StringVar(&flagInputFile, "input", "", "newline-separated `file` of strings to sort (random data is generated if empty)")
	flag.StringVar(&flagAddr, "addr", ":8080", "control-plane http listen `address`")
	flag.StringVar(&flagGroupSizes, "hierarchy", "", "comma-separated sub-communicator group sizes, innermost last (default: one flat group)")
	flag.StringVar(&flagNatsGroup, "nats-group", "default", "subject namespace for the nats transport")
	flag.StringVar(&flagVariant, "variant", "dms", "sort algorithm: dms, ses, or rquick")
	flag.IntVar(&flagRank, "rank", -1, "this PE's rank; -1 runs every PE of a local simulation in one process")
	flag.IntVar(&flagSize, "size", 4, "number of PEs, either simulated locally or in the real job")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagLogDate, "log-date", false, "prefix log lines with a timestamp")
	flag.Parse()

	switch flagVariant {
	case "dms", "ses", "rquick":
	default:
		xlog.Abortf("unknown -variant %q: must be dms, ses, or rquick", flagVariant)
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			xlog.Abortf("gops/agent.Listen failed: %s", err)
		}
	}

	if err := config.Load(flagConfigFile, flagEnvFile); err != nil {
		xlog.Abortf("loading config: %s", err)
	}

	sink := promsink.New()
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(sink.Registry(), promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	// Recover the control-plane's own request handling from a panic
	// instead of taking the whole process down with it — the actual sort
	// runs on its own goroutines and is unaffected either way.
	handler := handlers.RecoveryHandler()(router)

	server := &http.Server{Addr: flagAddr, Handler: handler, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	listener, err := net.Listen("tcp", flagAddr)
	if err != nil {
		xlog.Abortf("listening on %s: %s", flagAddr, err)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		xlog.Abortf("creating scheduler: %s", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() { xlog.Infof("dsort: checkpoint: still running") }),
	)
	if err != nil {
		xlog.Abortf("scheduling checkpoint job: %s", err)
	}
	sched.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			xlog.Abortf("control-plane server: %s", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		xlog.Infof("dsort: shutting down")
		server.Shutdown(context.Background())
		_ = sched.Shutdown()
	}()

	groupSizes, err := parseGroupSizes(flagGroupSizes, flagSize)
	if err != nil {
		xlog.Abortf("parsing -hierarchy: %s", err)
	}

	if flagRank < 0 {
		runLocalSimulation(flagSize, groupSizes, flagInputFile, flagVariant, flagLogDate, sink)
	} else {
		if err := runDistributedPE(flagRank, flagSize, groupSizes, flagInputFile, flagVariant, flagLogDate, flagNatsGroup, sink); err != nil {
			xlog.Abortf("pe %d: %s", flagRank, err)
		}
	}

	server.Shutdown(context.Background())
	_ = sched.Shutdown()
	wg.Wait()
}

// parseGroupSizes parses "-hierarchy" into the per-level sub-group
// counts local.NewHierarchies expects, defaulting to one flat group of
// size PEs.
func parseGroupSizes(spec string, size int) ([]int, error) {
	if spec == "" {
		return []int{size}, nil
	}
	parts := strings.Split(spec, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid group size %q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}

// runLocalSimulation runs every PE of a job inside this one process
// using pkg/comm/local, the same in-process transport the test suite
// exercises — useful for trying out the algorithms without standing up
// a real cluster of processes.
func runLocalSimulation(size int, groupSizes []int, inputFile, variant string, logDate bool, sink *promsink.Sink) {
	xlog.Init(logDate, -1)
	hierarchies, err := local.NewHierarchies(size, groupSizes)
	if err != nil {
		xlog.Abortf("building hierarchy: %s", err)
	}

	localInputs := loadOrGenerateInputs(size, inputFile)

	var wg sync.WaitGroup
	wg.Add(size)
	for pe := 0; pe < size; pe++ {
		pe := pe
		go func() {
			defer wg.Done()
			runOnePE(pe, localInputs[pe], hierarchies[pe], variant, sink)
		}()
	}
	wg.Wait()
}

// runDistributedPE runs this single process as one real PE talking to
// the rest of the job over NATS.
func runDistributedPE(rank, size int, groupSizes []int, inputFile, variant string, logDate bool, group string, sink *promsink.Sink) error {
	xlog.Init(logDate, rank)
	if config.Keys.NatsAddress == "" {
		return fmt.Errorf("no nats address configured; set natsAddress in config or DSORT_NATS_ADDRESS")
	}

	client, err := natscomm.Dial(natscomm.Config{Address: config.Keys.NatsAddress})
	if err != nil {
		return err
	}
	defer client.Close()

	cm, err := natscomm.New(client, group, size, rank)
	if err != nil {
		return err
	}
	h := &comm.Hierarchy{Levels: []comm.Level{{CommExchange: cm, CommOrig: local.NewGroup(1)[0], NumGroups: size, GroupSize: 1}}}

	localInputs := loadOrGenerateInputs(size, inputFile)
	runOnePE(rank, localInputs[rank], h, variant, sink)
	return nil
}

// dmsOptionsFromConfig builds a dms.Options from the process-wide config
// (config.Keys), the one place a sort's Options are assembled before
// dispatch, so the config surface's redistribution/compression/splitter
// knobs actually reach the algorithm instead of sitting unread (§6).
func dmsOptionsFromConfig(sink *promsink.Sink) dms.Options {
	opts := dms.DefaultOptions()
	opts.Sink = sink
	opts.CompressPrefixes = config.Keys.CompressPrefixes
	// MaxSplitterLengthFactor is a multiplier in the full
	// "100*(global-avg-LCP+5)" heuristic (§4.2); without a cheap way to
	// learn the global average LCP before sampling even begins, it is
	// used directly as the splitter byte cap rather than computed via the
	// full heuristic.
	opts.MaxSplitterLen = config.Keys.MaxSplitterLengthFactor
	if config.Keys.RedistributionStrategy == "equalSplit" {
		opts.Redistributor = splitter.EqualSplit{}
	} else {
		opts.Redistributor = splitter.Naive{}
	}
	return opts
}

func runOnePE(pe int, localStrings [][]byte, h *comm.Hierarchy, variant string, sink *promsink.Sink) {
	ctx := context.Background()
	start := time.Now()
	c := newIndexedContainer(localStrings, pe)

	switch variant {
	case "ses":
		opts := ses.DefaultOptions()
		opts.DMS = dmsOptionsFromConfig(sink)
		opts.QuantileSize = config.Keys.QuantileSize
		perm, err := ses.Sort(ctx, localStrings, pe, h, opts)
		if err != nil {
			xlog.Abortf("pe %d: ses.Sort: %s", pe, err)
		}
		xlog.Infof("pe %d: sorted %d strings in %s (ses)", pe, perm.Len(), time.Since(start))
	case "rquick":
		out, err := rquick.Sort(ctx, c, h, int64(pe))
		if err != nil {
			xlog.Abortf("pe %d: rquick.Sort: %s", pe, err)
		}
		xlog.Infof("pe %d: sorted %d strings in %s (rquick)", pe, out.Len(), time.Since(start))
	default:
		opts := dmsOptionsFromConfig(sink)
		out, _, err := dms.Sort(ctx, c, h, opts)
		if err != nil {
			xlog.Abortf("pe %d: dms.Sort: %s", pe, err)
		}
		xlog.Infof("pe %d: sorted %d strings in %s (dms)", pe, out.Len(), time.Since(start))
	}
}

func loadOrGenerateInputs(size int, inputFile string) [][][]byte {
	if inputFile == "" {
		return generateRandomInputs(size)
	}
	all, err := readLines(inputFile)
	if err != nil {
		xlog.Abortf("reading %q: %s", inputFile, err)
	}
	out := make([][][]byte, size)
	for i, line := range all {
		out[i%size] = append(out[i%size], line)
	}
	return out
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		out = append(out, append([]byte(nil), scanner.Bytes()...))
	}
	return out, scanner.Err()
}

func newIndexedContainer(localStrings [][]byte, pe int) *strs.Container {
	return strs.NewIndexedContainer(localStrings, pe, 0)
}

func generateRandomInputs(size int) [][][]byte {
	out := make([][][]byte, size)
	for pe := range out {
		for i := 0; i < 1000; i++ {
			out[pe] = append(out[pe], []byte(fmt.Sprintf("pe%d-string-%d", pe, i)))
		}
	}
	return out
}
