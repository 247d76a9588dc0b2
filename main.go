package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/joho/godotenv"
	"github.com/manishrjain/keys"
	"github.com/pkg/errors"
)

var (
	debug      = flag.Bool("debug", false, "Additional debug information if set.")
	csvFile    = flag.String("csv", "", "File path of CSV file containing new transactions. Use - for stdin (needs -unattended).")
	account    = flag.String("account", "", "Ledger account of the bank this CSV comes from (e.g., 'Assets:Checking').")
	journalIn  = flag.String("in", "", "Existing journal to learn from.")
	output     = flag.String("out", "", "Journal file to append to. Defaults to stdout.")
	currency   = flag.String("currency", "$", "Currency symbol or code to use (£, EUR).")
	suffixed   = flag.Bool("suffixed", false, "Write the currency after the amount.")
	ignore     = flag.String("cols-ignore", "", "Comma separated list of columns to ignore in CSV, the first column is 1.")
	moneyCol   = flag.Int("money-column", 0, "Column holding the amount, the first column is 1.")
	moneyCols  = flag.String("money-columns", "", "One or two comma separated columns holding amounts (money out,money in).")
	dateCol    = flag.Int("date-column", 0, "Column holding the date, the first column is 1.")
	dateFormat = flag.String("date", "",
		"Force the CSV date format, strftime (%d/%m/%Y) or w.r.t. Jan 02, 2006 (02/01/2006).")
	ledgerDate = flag.String("ledger-date", "", "Date format of the generated entries. Defaults to 2006-01-02.")
	skip       = flag.Int("skip", 0, "Number of header lines in CSV to skip.")
	footer     = flag.Int("skip-footer", 0, "Number of footer lines in CSV to skip.")
	separator  = flag.String("sep", "", "CSV separator. Guessed from the data if not set.")
	backslash  = flag.Bool("backslash-escapes", false, "The CSV escapes quotes with a backslash (\\\") instead of doubling them.")
	commaCents = flag.Bool("comma-cents", false, "Comma separates the cents ($100,50 instead of $100.50).")
	encodingF  = flag.String("encoding", "", "Encoding of the CSV file, e.g. windows-1252. UTF-8 is assumed.")
	inverse    = flag.Bool("inverse", false, "Use the negative of each amount.")
	raw        = flag.Bool("raw", false, "Copy amounts verbatim from the CSV.")
	unattended = flag.Bool("unattended", false, "Don't ask, use the best suggestion or the default account.")
	tokensFile = flag.String("tokens", "", "YAML file of account tokens and /regex/ rules.")
	printTable = flag.Bool("table", false, "Print the parsed CSV as a table and exit.")
	tableOut   = flag.String("table-out", "", "Also write the -table output to this file.")
	defInto    = flag.String("default-into", "Expenses:Unknown", "Account for money going out when nothing matches.")
	defOutof   = flag.String("default-outof", "Income:Unknown", "Account for money coming in when nothing matches.")
	failFlag   = flag.Bool("fail-on-unknown", false, "Fail in unattended mode when a row has no suggestion.")
	format     = flag.String("format", "ledger", "Output format: ledger or beancount.")
	tmplFlag   = flag.String("template", "", "Go template for generated transactions. See TxnTemplate.")
	toCSV      = flag.Bool("to-csv", false, "Print the postings of the -in journal as CSV and exit.")
	configDir  = flag.String("conf", os.Getenv("HOME")+"/.reckon-ledger",
		"Config directory to store various reckon-ledger configs in.")
	shortcuts = flag.String("short", "shortcuts.yaml", "Name of shortcuts file.")
	aiReview  = flag.Bool("ai-review", false, "Ask Claude for accounts when nothing in the history matches.")
	aiModel   = flag.String("ai-model", "claude-sonnet-4-5-20250929", "Claude model used by -ai-review.")
)

type configs struct {
	Accounts map[string]map[string]string // account and the corresponding config.
	AI       struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`
}

// loadConfig applies <conf>/config.yaml: flags saved for the bank account and
// the AI settings.
func loadConfig(dir string) (configs, error) {
	var c configs
	configPath := path.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, errors.Wrapf(err, "unable to read %v", configPath)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, errors.Wrapf(err, "unable to unmarshal yaml config at %v", configPath)
	}
	if ac, has := c.Accounts[*account]; has {
		debugf("Using flags from config: %+v", ac)
		for k, v := range ac {
			if err := flag.Set(k, v); err != nil {
				return c, errors.Wrapf(err, "invalid flag %q in %v", k, configPath)
			}
		}
	}
	return c, nil
}

func optionsFromFlags() (Options, error) {
	opt := DefaultOptions()
	opt.File = *csvFile
	opt.BankAccount = *account
	opt.Verbose = *debug
	opt.Inverse = *inverse
	opt.PrintTable = *printTable
	opt.OutputFile = *output
	opt.LearnFrom = *journalIn
	opt.MoneyColumn = *moneyCol
	opt.DateColumn = *dateCol
	opt.Raw = *raw
	opt.ContainsHeader = *skip
	opt.ContainsFooter = *footer
	opt.CSVSeparator = *separator
	opt.CSVBackslashEscapes = *backslash
	opt.CommaSeparatesCents = *commaCents
	opt.Encoding = *encodingF
	opt.Currency = *currency
	opt.Suffixed = *suffixed
	opt.DateFormat = *dateFormat
	opt.LedgerDateFormat = *ledgerDate
	opt.Unattended = *unattended
	opt.AccountTokensFile = *tokensFile
	opt.TableOutputFile = *tableOut
	opt.DefaultIntoAccount = *defInto
	opt.DefaultOutofAccount = *defOutof
	opt.FailOnUnknownAccount = *failFlag
	opt.Format = *format
	opt.Template = *tmplFlag
	opt.ConfigDir = *configDir
	opt.Shortcuts = *shortcuts
	opt.AIReview = *aiReview
	opt.AIModel = *aiModel

	var err error
	if opt.IgnoreColumns, err = parseColumnList(*ignore); err != nil {
		return opt, err
	}
	if opt.MoneyColumns, err = parseColumnList(*moneyCols); err != nil {
		return opt, err
	}
	return opt, nil
}

// includeAll appends the files pulled in with "include" to the journal.
func includeAll(dir string, data []byte) ([]byte, error) {
	final := make([]byte, len(data))
	copy(final, data)

	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "include ") {
			continue
		}
		fname := strings.Trim(line[8:], " \n")
		include, err := os.ReadFile(path.Join(dir, fname))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read included file: %v", fname)
		}
		final = append(final, '\n')
		final = append(final, include...)
	}
	return final, nil
}

func readJournal(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read journal: %v", file)
	}
	return includeAll(path.Dir(file), data)
}

func main() {
	flag.Parse()

	checkf(os.MkdirAll(*configDir, 0o755), "Unable to create directory: %v", *configDir)
	conf, err := loadConfig(*configDir)
	checkf(err, "Unable to load config")

	envPath := path.Join(*configDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		checkf(godotenv.Load(envPath), "Unable to load %v", envPath)
	}

	opt, err := optionsFromFlags()
	if err != nil {
		oerr(err.Error())
		return
	}
	if conf.AI.Enabled {
		opt.AIReview = true
	}
	if len(conf.AI.Model) > 0 {
		opt.AIModel = conf.AI.Model
	}

	if *toCSV {
		if len(opt.LearnFrom) == 0 {
			oerr("Please specify the journal to convert with -in")
			return
		}
		app, err := NewApp(opt)
		checkf(err, "Unable to set up")
		data, err := readJournal(opt.LearnFrom)
		checkf(err, "Unable to read journal")
		out, err := app.journal.ToCSV(bytes.NewReader(data))
		checkf(err, "Unable to convert journal")
		fmt.Print(out)
		return
	}

	if err := opt.Validate(); err != nil {
		oerr(err.Error())
		return
	}
	app, err := NewApp(opt)
	checkf(err, "Unable to set up")
	app.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	if len(conf.AI.APIKey) > 0 {
		app.apiKey = conf.AI.APIKey
	}

	if len(opt.LearnFrom) > 0 {
		data, err := readJournal(opt.LearnFrom)
		checkf(err, "Unable to read journal")
		checkf(app.LearnFrom(bytes.NewReader(data)), "Unable to learn from %v", opt.LearnFrom)
		if n := len(app.journal.Warnings()); n > 0 {
			warnf("%d entries of %v could not be balanced.", n, opt.LearnFrom)
		}
	}
	if len(opt.AccountTokensFile) > 0 {
		data, err := os.ReadFile(opt.AccountTokensFile)
		checkf(err, "Unable to read tokens file: %v", opt.AccountTokensFile)
		checkf(app.LoadTokens(data), "Unable to load tokens file: %v", opt.AccountTokensFile)
	}

	var in []byte
	if opt.File == "-" {
		in, err = io.ReadAll(os.Stdin)
	} else {
		in, err = os.ReadFile(opt.File)
	}
	checkf(err, "Unable to read csv file: %v", opt.File)
	checkf(app.ReadCSV(in), "Unable to parse csv file: %v", opt.File)

	if opt.PrintTable {
		app.PrintTable()
		if len(opt.TableOutputFile) > 0 {
			f, err := os.Create(opt.TableOutputFile)
			checkf(err, "Unable to create table file: %v", opt.TableOutputFile)
			checkf(app.WriteTable(f), "Unable to write table")
			checkf(f.Close(), "Unable to close table file: %v", opt.TableOutputFile)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := os.Stdout
	if len(opt.OutputFile) > 0 {
		out, err = os.OpenFile(opt.OutputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		checkf(err, "Unable to open output file: %v", opt.OutputFile)
	}

	if opt.Unattended {
		checkf(app.RunUnattended(ctx, out), "Unable to process %v", opt.File)
	} else {
		keyfile := path.Join(opt.ConfigDir, opt.Shortcuts)
		short := keys.ParseConfig(keyfile)
		setDefaultMappings(short)
		for _, acc := range app.corpus.Accounts() {
			assignForAccount(short, acc)
		}
		defer short.Persist(keyfile)

		tf, err := os.CreateTemp("", "reckon-ledger-txns")
		checkf(err, "Unable to create temp file")
		tf.Close()
		defer os.Remove(tf.Name())
		store, err := openSession(tf.Name())
		checkf(err, "Unable to open session")
		defer store.Close()

		app.tty = true
		singleCharMode()
		err = app.Interactive(ctx, os.Stdin, out, short, store)
		saneMode()
		checkf(err, "Unable to process %v", opt.File)
	}
	if out != os.Stdout {
		checkf(out.Close(), "Unable to close output file: %v", out.Name())
		fmt.Printf("Transactions written to file: %s\n", out.Name())
	}
}
