package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/sms-spam/app/storage"
	"github.com/umputun/sms-spam/app/storage/engine"
	"github.com/umputun/sms-spam/lib/dataset"
	"github.com/umputun/sms-spam/lib/logreg"
	"github.com/umputun/sms-spam/lib/smsspam"
	"github.com/umputun/sms-spam/lib/vectorizer"
)

type options struct {
	DB  string `long:"db" env:"DB" default:"sms-spam.db" description:"database url, sqlite file or postgres://"`
	GID string `long:"gid" env:"GID" default:"sms" description:"group id, models and samples are scoped by it"`

	Train   trainCmd   `command:"train" description:"train and evaluate a classifier"`
	Predict predictCmd `command:"predict" description:"classify messages with a stored model"`
	Inspect inspectCmd `command:"inspect" description:"show the most informative tokens of a stored model"`
	Import  importCmd  `command:"import" description:"import a dataset file into the database"`
	Models  struct{}   `command:"models" description:"list stored models"`

	Report struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated training reports"`
		FileName   string `long:"file" env:"FILE" default:"sms-spam-reports.log" description:"location of training reports"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"10M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old report files to retain"`
	} `group:"report" namespace:"report" env-namespace:"REPORT"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

type trainCmd struct {
	Data          string  `long:"data" env:"DATA" description:"dataset file, tab-separated label and message per line"`
	FromDB        bool    `long:"from-db" env:"FROM_DB" description:"train on samples stored in the database"`
	Vectorizer    string  `long:"vectorizer" env:"VECTORIZER" choice:"count" choice:"tfidf" default:"count" description:"vectorization strategy"`
	TrainFraction float64 `long:"train-fraction" env:"TRAIN_FRACTION" default:"0.75" description:"share of messages in the train subset"`
	Seed          uint64  `long:"seed" env:"SEED" default:"0" description:"random seed of the train/test split"`

	Tokens struct {
		MinLen    int    `long:"min-len" env:"MIN_LEN" default:"2" description:"min token length in runes"`
		MinDF     int    `long:"min-df" env:"MIN_DF" default:"0" description:"min number of train messages with a token, 0 for strategy default"`
		NgramMin  int    `long:"ngram-min" env:"NGRAM_MIN" default:"1" description:"lower bound of word n-gram range"`
		NgramMax  int    `long:"ngram-max" env:"NGRAM_MAX" default:"0" description:"upper bound of word n-gram range, 0 for ngram-min"`
		StopWords string `long:"stop-words" env:"STOP_WORDS" description:"stop words file, one token per line"`
	} `group:"tokens" namespace:"tokens" env-namespace:"TOKENS"`

	LogReg struct {
		C         float64 `long:"c" env:"C" default:"1" description:"inverse regularization strength"`
		MaxIter   int     `long:"max-iter" env:"MAX_ITER" default:"1500" description:"max solver iterations"`
		Tolerance float64 `long:"tol" env:"TOL" default:"0.0001" description:"gradient norm tolerance"`
		Strict    bool    `long:"strict" env:"STRICT" description:"fail if the solver didn't converge"`
	} `group:"logreg" namespace:"logreg" env-namespace:"LOGREG"`

	Top     int  `long:"top" env:"TOP" default:"10" description:"number of top tokens to show"`
	NoStore bool `long:"no-store" env:"NO_STORE" description:"don't store the trained model"`
}

type predictCmd struct {
	ModelID int64 `long:"model-id" env:"MODEL_ID" default:"0" description:"stored model id, 0 for the latest"`
	Args    struct {
		Messages []string `positional-arg-name:"message" description:"messages to classify, read from stdin if empty"`
	} `positional-args:"yes"`
}

type inspectCmd struct {
	ModelID int64 `long:"model-id" env:"MODEL_ID" default:"0" description:"stored model id, 0 for the latest"`
	Top     int   `long:"top" env:"TOP" default:"20" description:"number of top tokens to show"`
}

type importCmd struct {
	Data    string `long:"data" env:"DATA" required:"true" description:"dataset file, tab-separated label and message per line"`
	Cleanup bool   `long:"cleanup" env:"CLEANUP" description:"remove stored samples of the group before import"`
}

// trainReport is a json line written to the report log for each training run
type trainReport struct {
	Time       time.Time          `json:"time"`
	GID        string             `json:"gid"`
	ModelID    int64              `json:"model_id,omitempty"`
	Source     string             `json:"source"`
	Params     smsspam.Params     `json:"params"`
	Stats      dataset.Stats      `json:"stats"`
	TrainSize  int                `json:"train_size"`
	TestSize   int                `json:"test_size"`
	VocabSize  int                `json:"vocab_size"`
	Evaluation smsspam.Evaluation `json:"evaluation"`
	Converged  bool               `json:"converged"`
	Iterations int                `json:"iterations"`
	Warning    string             `json:"warning,omitempty"`
}

var revision = "local"

func main() {
	fmt.Printf("sms-spam %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, dbSecrets(opts.DB)...)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, p.Active.Name, opts, os.Stdin, os.Stdout); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// execute runs the command, results printed to out
func execute(ctx context.Context, cmd string, opts options, in io.Reader, out io.Writer) error {
	switch cmd {
	case "train":
		return runTrain(ctx, opts, out)
	case "predict":
		return runPredict(ctx, opts, in, out)
	case "inspect":
		return runInspect(ctx, opts, out)
	case "import":
		return runImport(ctx, opts, out)
	case "models":
		return runModels(ctx, opts, out)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func runTrain(ctx context.Context, opts options, out io.Writer) error {
	cmd := opts.Train
	params, err := cmd.params()
	if err != nil {
		return err
	}

	var db *engine.SQL
	if cmd.FromDB || !cmd.NoStore {
		if db, err = engine.New(ctx, opts.DB, opts.GID); err != nil {
			return fmt.Errorf("can't make db engine, %w", err)
		}
		defer db.Close()
	}

	var ds dataset.Dataset
	var source string
	switch {
	case cmd.FromDB:
		samples, serr := storage.NewSamples(ctx, db)
		if serr != nil {
			return fmt.Errorf("can't make samples storage, %w", serr)
		}
		if ds, err = samples.Dataset(ctx); err != nil {
			return fmt.Errorf("can't read samples, %w", err)
		}
		source = "db:" + opts.GID
	case cmd.Data != "":
		if ds, err = dataset.LoadFile(cmd.Data); err != nil {
			return fmt.Errorf("can't load dataset, %w", err)
		}
		source = cmd.Data
	default:
		return errors.New("dataset is not set, use --data or --from-db")
	}

	res, err := smsspam.RunDataset(ds, params)
	if err != nil {
		return fmt.Errorf("training failed, %w", err)
	}
	printTrainResult(out, res, cmd.Top)

	rep := trainReport{
		Time:       time.Now(),
		GID:        opts.GID,
		Source:     source,
		Params:     res.Classifier.Params(),
		Stats:      res.Stats,
		TrainSize:  len(res.Split.Train),
		TestSize:   len(res.Split.Test),
		VocabSize:  res.Classifier.Vocabulary().Len(),
		Evaluation: res.Evaluation,
		Converged:  res.Classifier.Warning() == nil,
		Iterations: res.Classifier.Model().Iterations,
	}
	if w := res.Classifier.Warning(); w != nil {
		rep.Warning = w.Error()
	}

	if !cmd.NoStore {
		models, merr := storage.NewModels(ctx, db)
		if merr != nil {
			return fmt.Errorf("can't make models storage, %w", merr)
		}
		if rep.ModelID, err = models.Save(ctx, res.Classifier, res.Evaluation); err != nil {
			return fmt.Errorf("can't store model, %w", err)
		}
		fmt.Fprintf(out, "model #%d stored, gid %s\n", rep.ModelID, opts.GID)
	}

	reportWr, err := makeReportWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make report writer, %w", err)
	}
	defer reportWr.Close()
	return writeReport(reportWr, rep)
}

func runPredict(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	m, closeFn, err := loadModel(ctx, opts, opts.Predict.ModelID)
	if err != nil {
		return err
	}
	defer closeFn()

	messages := opts.Predict.Args.Messages
	if len(messages) == 0 {
		if messages, err = readMessages(in); err != nil {
			return fmt.Errorf("can't read messages, %w", err)
		}
	}
	if len(messages) == 0 {
		return errors.New("no messages to classify")
	}

	preds, err := m.Classifier.PredictAll(messages...)
	if err != nil {
		return fmt.Errorf("can't classify messages, %w", err)
	}
	for i, p := range preds {
		fmt.Fprintf(out, "%s\t%.4f\t%s\n", p.Class, p.Probability, messages[i])
	}
	return nil
}

func runInspect(ctx context.Context, opts options, out io.Writer) error {
	m, closeFn, err := loadModel(ctx, opts, opts.Inspect.ModelID)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Fprintf(out, "model: %s\n", m.ModelInfo)
	fmt.Fprintf(out, "evaluation: %s\n", m.Evaluation)
	printVocabulary(out, m.Classifier, opts.Inspect.Top)
	return nil
}

func runImport(ctx context.Context, opts options, out io.Writer) error {
	ds, err := dataset.LoadFile(opts.Import.Data)
	if err != nil {
		return fmt.Errorf("can't load dataset, %w", err)
	}

	db, err := engine.New(ctx, opts.DB, opts.GID)
	if err != nil {
		return fmt.Errorf("can't make db engine, %w", err)
	}
	defer db.Close()

	samples, err := storage.NewSamples(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make samples storage, %w", err)
	}
	st, err := samples.Import(ctx, ds, opts.Import.Cleanup)
	if err != nil {
		return fmt.Errorf("can't import samples, %w", err)
	}
	fmt.Fprintf(out, "imported %d messages, stored samples of %s: %s\n", len(ds), opts.GID, st)
	return nil
}

func runModels(ctx context.Context, opts options, out io.Writer) error {
	db, err := engine.New(ctx, opts.DB, opts.GID)
	if err != nil {
		return fmt.Errorf("can't make db engine, %w", err)
	}
	defer db.Close()

	models, err := storage.NewModels(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make models storage, %w", err)
	}
	list, err := models.List(ctx)
	if err != nil {
		return fmt.Errorf("can't list models, %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "no models for %s\n", opts.GID)
		return nil
	}
	for _, m := range list {
		fmt.Fprintln(out, m)
	}
	return nil
}

// params makes pipeline params from command line options, stop words loaded from file
func (c trainCmd) params() (smsspam.Params, error) {
	res := smsspam.Params{
		Vectorizer: vectorizer.Kind(c.Vectorizer),
		Tokens: vectorizer.Params{
			MinTokenLen: c.Tokens.MinLen,
			MinDF:       c.Tokens.MinDF,
			NgramMin:    c.Tokens.NgramMin,
			NgramMax:    c.Tokens.NgramMax,
		},
		LogReg:            logreg.Params{C: c.LogReg.C, MaxIter: c.LogReg.MaxIter, Tolerance: c.LogReg.Tolerance},
		TrainFraction:     c.TrainFraction,
		Seed:              c.Seed,
		StrictConvergence: c.LogReg.Strict,
	}
	if c.Tokens.StopWords != "" {
		fh, err := os.Open(c.Tokens.StopWords)
		if err != nil {
			return smsspam.Params{}, fmt.Errorf("can't open stop words file, %w", err)
		}
		defer fh.Close()
		if res.Tokens.StopWords, err = readLines(fh); err != nil {
			return smsspam.Params{}, fmt.Errorf("can't read stop words, %w", err)
		}
		log.Printf("[DEBUG] loaded %d stop words from %s", len(res.Tokens.StopWords), c.Tokens.StopWords)
	}
	return res, nil
}

// loadModel opens the database and loads a stored model, the latest one for zero id.
// returned func closes the database.
func loadModel(ctx context.Context, opts options, id int64) (*storage.StoredModel, func(), error) {
	db, err := engine.New(ctx, opts.DB, opts.GID)
	if err != nil {
		return nil, nil, fmt.Errorf("can't make db engine, %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Printf("[WARN] can't close db, %v", err)
		}
	}

	models, err := storage.NewModels(ctx, db)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("can't make models storage, %w", err)
	}

	var m *storage.StoredModel
	if id > 0 {
		m, err = models.Get(ctx, id)
	} else {
		m, err = models.Latest(ctx)
	}
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("can't load model, %w", err)
	}
	if w := m.Classifier.Warning(); w != nil {
		log.Printf("[WARN] model #%d: %v", m.ID, w)
	}
	return m, closeFn, nil
}

// readMessages reads messages one per line, blank lines skipped, text kept as is
func readMessages(r io.Reader) ([]string, error) {
	var res []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		res = append(res, line)
	}
	return res, scanner.Err()
}

// readLines reads non-empty trimmed lines, lines starting with # are comments
func readLines(r io.Reader) ([]string, error) {
	var res []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res = append(res, line)
	}
	return res, scanner.Err()
}

func printTrainResult(out io.Writer, res *smsspam.Result, top int) {
	fmt.Fprintf(out, "dataset: %s\n", res.Stats)
	fmt.Fprintf(out, "split: train %d, test %d\n", len(res.Split.Train), len(res.Split.Test))
	m := res.Classifier.Model()
	fmt.Fprintf(out, "solver: converged %v, iterations %d, status %s, loss %.6f\n", m.Converged, m.Iterations, m.Status, m.Loss)
	fmt.Fprintf(out, "evaluation: %s\n", res.Evaluation)
	fmt.Fprintf(out, "AUC: %.4f\n", res.Evaluation.AUC)
	printVocabulary(out, res.Classifier, top)
}

func printVocabulary(out io.Writer, clf *smsspam.Classifier, top int) {
	vocab := clf.Vocabulary()
	fmt.Fprintf(out, "vocabulary: %d tokens, longest %q\n", vocab.Len(), vocab.Longest())
	if top <= 0 {
		return
	}
	ham, spam := clf.TopFeatures(top)
	format := func(ff []smsspam.Feature) string {
		parts := make([]string, 0, len(ff))
		for _, f := range ff {
			parts = append(parts, fmt.Sprintf("%s:%.4f", f.Token, f.Weight))
		}
		return strings.Join(parts, ", ")
	}
	fmt.Fprintf(out, "top ham tokens: %s\n", format(ham))
	fmt.Fprintf(out, "top spam tokens: %s\n", format(spam))
}

func writeReport(wr io.Writer, rep trainReport) error {
	line, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("can't marshal report, %w", err)
	}
	if _, err := wr.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("can't write report, %w", err)
	}
	return nil
}

// makeReportWriter creates a writer for training reports
// it parses options and makes lumberjack logger with rotation
func makeReportWriter(opts options) (io.WriteCloser, error) {
	if !opts.Report.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	maxSize, err := sizeParse(opts.Report.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("can't parse report max size: %w", err)
	}
	maxSize /= 1048576
	if maxSize == 0 {
		maxSize = 1
	}

	log.Printf("[INFO] reports enabled for %s, max size %dM", opts.Report.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Report.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Report.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

// sizeParse parses size with optional k/m/g/t suffix, case-insensitive
func sizeParse(inp string) (uint64, error) {
	if inp == "" {
		return 0, errors.New("empty value")
	}
	for i, sfx := range []string{"k", "m", "g", "t"} {
		if strings.HasSuffix(strings.ToLower(inp), sfx) {
			val, err := strconv.Atoi(inp[:len(inp)-1])
			if err != nil {
				return 0, fmt.Errorf("can't parse %s: %w", inp, err)
			}
			return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
		}
	}
	return strconv.ParseUint(inp, 10, 64)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

// dbSecrets returns the password of the database url, to be masked in logs
func dbSecrets(dbURL string) []string {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return nil
	}
	if pass, ok := u.User.Password(); ok && pass != "" {
		return []string{pass}
	}
	return nil
}

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
