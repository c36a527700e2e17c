package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/esimov/facefinder"
	"github.com/esimov/facefinder/cascade"
	"github.com/esimov/facefinder/event"
	"github.com/esimov/facefinder/server"
	"github.com/esimov/facefinder/utils"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const HelpBanner = `
┌─┐┌─┐┌─┐┌─┐┌─┐┬┌┐┌┌┬┐┌─┐┬─┐
├┤ ├─┤│  ├┤ ├┤ ││││ ││├┤ ├┬┘
└  ┴ ┴└─┘└─┘└  ┴┘└┘─┴┘└─┘┴└─

Face, landmark and pupil detection.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// spinnerLabel prefixes the progress messages.
const spinnerLabel = "⚡ FACEFINDER"

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// validExtensions lists the image files picked up from a source directory.
var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp"}

// Version indicates the current build version.
var Version string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// result holds the outcome of the detection run over one image.
type result struct {
	Path  string            `json:"path"`
	Faces []facefinder.Face `json:"faces,omitempty"`
	Error string            `json:"error,omitempty"`
}

var (
	// Flags
	source      = flag.String("in", pipeName, "Source image, url or directory")
	destination = flag.String("out", "", "Annotated destination image or directory")
	minSize     = flag.Uint("min", 100, "Minimum face size")
	scaleFactor = flag.Float64("scale", 1.1, "Scale factor between the detection window sizes")
	shiftFactor = flag.Float64("shift", 0.1, "Detection window shift relative to its size")
	iouThresh   = flag.Float64("iou", 0.2, "Intersection over union threshold of the clustering")
	faceCasc    = flag.String("cc", "", "Face detector cascade (defaults to the published one)")
	pupilCasc   = flag.String("plc", "", "Pupil localizer cascade (defaults to the published one)")
	lmarkDir    = flag.String("flpc", "", "Facial landmark cascades directory (defaults to the published one)")
	seed        = flag.Uint64("seed", facefinder.DefaultSeed, "Seed of the pupil perturbations")
	perturbs    = flag.Int("perturbs", facefinder.DefaultPerturbs, "Number of pupil perturbations")
	workers     = flag.Int("conc", runtime.NumCPU(), "Number of files to process concurrently")
	serveAddr   = flag.String("serve", "", "Serve the detection over HTTP on the given address")
	poll        = flag.Bool("poll", false, "Answer the events of the runtime configured in the environment")
	envFile     = flag.String("env", "", "Env file loaded before reading the configuration")
	logLevel    = flag.String("log-level", "info", "Log level")
	logFile     = flag.String("log-file", "", "Rotated log file")
)

func main() {
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, fmt.Sprintf(HelpBanner, Version))
		flag.PrintDefaults()
	}
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatal(utils.DecorateText(fmt.Sprintf("Unable to load the env file: %v", err), utils.ErrorMessage))
		}
	}

	logger, err := utils.NewLogger(*logLevel, *logFile)
	if err != nil {
		log.Fatal(utils.DecorateText(err.Error(), utils.ErrorMessage))
	}

	sources := cascade.DefaultSources()
	if *faceCasc != "" {
		sources.Facefinder = *faceCasc
	}
	if *pupilCasc != "" {
		sources.Puploc = *pupilCasc
	}
	if *lmarkDir != "" {
		sources.Landmarks = *lmarkDir
	}

	now := time.Now()
	models, err := cascade.Load(sources)
	if err != nil {
		logger.WithError(err).Fatal("could not load the cascades")
	}
	logger.WithField("elapsed", time.Since(now)).Debug("cascades loaded")

	ff, err := facefinder.New(models,
		facefinder.WithSeed(*seed),
		facefinder.WithPerturbs(*perturbs),
		facefinder.WithLogger(logger),
	)
	if err != nil {
		logger.WithError(err).Fatal("could not create the face finder")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *serveAddr != "":
		if err := serve(ctx, *serveAddr, ff, logger); err != nil {
			logger.WithError(err).Fatal("server stopped")
		}
	case *poll:
		cfg, err := event.ConfigFromEnv()
		if err != nil {
			logger.WithError(err).Fatal("invalid event runtime configuration")
		}
		poller, err := event.NewPoller(cfg, ff, logger)
		if err != nil {
			logger.WithError(err).Fatal("could not create the event poller")
		}
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Fatal("event poller stopped")
		}
	default:
		opt := facefinder.Opt{
			MinSize:     uint32(*minSize),
			ScaleFactor: float32(*scaleFactor),
			ShiftFactor: float32(*shiftFactor),
			Threshold:   float32(*iouThresh),
		}
		if err := opt.Validate(); err != nil {
			flag.Usage()
			log.Fatal(utils.DecorateText("\n"+err.Error(), utils.ErrorMessage))
		}
		detectFiles(ctx, ff, opt)
	}
}

// serve runs the HTTP server until ctx is done.
func serve(ctx context.Context, addr string, ff *facefinder.FaceFinder, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(ff, logger),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// detectFiles runs the detection over a single image or over every image of a directory
// and prints the results as JSON on the standard output.
func detectFiles(ctx context.Context, ff *facefinder.FaceFinder, opt facefinder.Opt) {
	var (
		fs  os.FileInfo
		err error
	)
	if !utils.IsValidUrl(*source) && *source != pipeName {
		fs, err = os.Stat(*source)
		if err != nil {
			log.Fatalf(
				utils.DecorateText("Failed to load the source image: %v", utils.ErrorMessage),
				utils.DecorateText(err.Error(), utils.DefaultMessage),
			)
		}
	}
	if *source == pipeName && term.IsTerminal(int(os.Stdin.Fd())) {
		log.Fatal(utils.DecorateText("`-` should be used with a pipe for stdin", utils.ErrorMessage))
	}

	now := time.Now()
	// The annotated image takes the standard output when piped.
	stdout := os.Stdout
	if *destination == pipeName {
		stdout = os.Stderr
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if fs != nil && fs.IsDir() {
		if *destination != "" {
			if err := os.MkdirAll(*destination, 0755); err != nil {
				log.Fatalf(
					utils.DecorateText("Unable to create the destination directory: %v", utils.ErrorMessage),
					utils.DecorateText(err.Error(), utils.DefaultMessage),
				)
			}
		}

		// Limit the concurrently running workers to maxWorkers.
		if *workers <= 0 || *workers > maxWorkers {
			*workers = runtime.NumCPU()
		}

		done := make(chan struct{})
		defer close(done)

		paths, errc := walkDir(done, *source, validExtensions)
		ch := make(chan result)

		var wg sync.WaitGroup
		wg.Add(*workers)
		for i := 0; i < *workers; i++ {
			go func() {
				defer wg.Done()
				consumer(ctx, done, paths, ff, opt, ch)
			}()
		}

		// Close the channel after the values are consumed.
		go func() {
			defer close(ch)
			wg.Wait()
		}()

		spinner, stopSpinner := startSpinner("is detecting the faces...")
		results := []result{}
		for res := range ch {
			results = append(results, res)
			spinner.SetMessage(utils.StatusLine(spinnerLabel,
				fmt.Sprintf("is detecting the faces... %d images done", len(results))))
		}
		stopSpinner(utils.StatusLine(spinnerLabel,
			fmt.Sprintf("processed %d images ✔", len(results))))
		if err := <-errc; err != nil {
			fmt.Fprint(os.Stderr, utils.DecorateText(err.Error()+"\n", utils.ErrorMessage))
		}
		enc.Encode(results)
	} else {
		_, stopSpinner := startSpinner("is detecting the faces...")
		res := process(*source, *destination, ff, opt)
		stopSpinner(utils.StatusLine(spinnerLabel, "is detecting the faces... ✔"))

		if res.Error != "" {
			fmt.Fprint(os.Stderr,
				utils.DecorateText("\nError detecting the faces: ", utils.ErrorMessage),
				utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", res.Error), utils.DefaultMessage),
			)
			os.Exit(1)
		}
		enc.Encode(res.Faces)
	}

	fmt.Fprintf(os.Stderr, "\nExecution time: %s%s\n",
		utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage),
		utils.DefaultColor,
	)
}

// startSpinner starts the progress indicator. The returned function stops it with
// the given message. The cursor visibility is restored on CTRL-C.
func startSpinner(msg string) (*utils.Spinner, func(stopMsg string)) {
	spinner := utils.NewSpinner(utils.StatusLine(spinnerLabel, msg),
		time.Millisecond*200, term.IsTerminal(int(os.Stderr.Fd())))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go restoreOnInterrupt(sigc, done, func() {
		spinner.RestoreCursor()
		os.Exit(1)
	})

	spinner.Start()
	return spinner, func(stopMsg string) {
		signal.Stop(sigc)
		close(done)
		spinner.StopMsg = stopMsg
		spinner.Stop()
	}
}

// restoreOnInterrupt calls restore once a signal arrives on sig.
// It returns without calling it when done is closed first.
func restoreOnInterrupt(sig <-chan os.Signal, done <-chan struct{}, restore func()) {
	select {
	case <-sig:
		restore()
	case <-done:
	}
}

// walkDir starts a goroutine to walk the specified directory tree in recursive manner
// and send the path of each supported image on the string channel.
// It sends the result of the walk on the error channel.
// It terminates in case done channel is closed.
func walkDir(
	done <-chan struct{},
	src string,
	srcExts []string,
) (<-chan string, <-chan error) {
	pathChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		// Close the paths channel after Walk returns.
		defer close(pathChan)

		errChan <- filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() || !isValidExtension(filepath.Ext(info.Name()), srcExts) {
				return nil
			}

			select {
			case <-done:
				return errors.New("directory walk cancelled")
			case pathChan <- path:
			}
			return nil
		})
	}()
	return pathChan, errChan
}

// consumer reads the path names from the paths channel, runs the detection
// over each image and sends the results on the res channel.
func consumer(
	ctx context.Context,
	done <-chan struct{},
	paths <-chan string,
	ff *facefinder.FaceFinder,
	opt facefinder.Opt,
	res chan<- result,
) {
	for src := range paths {
		// Drain the remaining paths once cancelled.
		if ctx.Err() != nil {
			continue
		}
		var dst string
		if *destination != "" {
			dst = filepath.Join(*destination, filepath.Base(src))
		}

		select {
		case <-done:
			return
		case res <- process(src, dst, ff, opt):
		}
	}
}

// process runs the detection over the src image and, when dst is not empty,
// saves the annotated image there.
func process(src, dst string, ff *facefinder.FaceFinder, opt facefinder.Opt) result {
	res := result{Path: src}

	data, err := utils.ReadSource(src)
	if err != nil {
		res.Error = fmt.Sprintf("unable to read the source: %v", err)
		return res
	}
	if ct := utils.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		res.Error = fmt.Sprintf("unsupported content type: %s", ct)
		return res
	}
	img, err := facefinder.DecodeImage(data)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	faces, err := ff.DetectImage(opt, img)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Faces = faces

	if dst != "" {
		if err := saveAnnotated(dst, img, faces); err != nil {
			res.Error = err.Error()
		}
	}
	return res
}

// saveAnnotated draws the detection results over img and writes it to dst.
func saveAnnotated(dst string, img image.Image, faces []facefinder.Face) error {
	var out *os.File
	if dst == pipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("`-` should be used with a pipe for stdout")
		}
		out = os.Stdout
	} else {
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("unable to create the destination file: %v", err)
		}
		defer f.Close()
		out = f
	}
	return facefinder.EncodeImage(out, facefinder.Annotate(img, faces))
}

// isValidExtension checks for the supported extensions.
func isValidExtension(ext string, extensions []string) bool {
	ext = strings.ToLower(ext)
	for _, ex := range extensions {
		if ex == ext {
			return true
		}
	}
	return false
}
