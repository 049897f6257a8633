// Package main implements the pesadb CLI: an interactive SQL shell over
// a single database file, with an optional HTTP API server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pesadb/pesadb/internal/engine"
	"github.com/pesadb/pesadb/internal/web"
)

const version = "0.1.0"

const banner = `pesadb %s
Type '.help' for usage hints or '.quit' to exit.`

var dotCommands = []struct{ cmd, desc string }{
	{".help", "Show this help message"},
	{".quit", "Exit the program"},
	{".exit", "Exit the program (alias for .quit)"},
	{".tables", "List all tables"},
	{".schema", "Show schema for all tables or a specific table"},
	{".clear", "Clear the screen"},
}

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	dbPath := flag.String("db", "pesa.db", "Path to database file")
	serve := flag.Bool("serve", false, "Run the HTTP API server instead of the REPL")
	port := flag.Int("port", 8080, "HTTP port when serving")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pesadb version %s\n", version)
		return
	}

	eng, err := engine.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	if *serve {
		if err := web.NewServer(*port, eng).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println(bannerStyle.Render(fmt.Sprintf(banner, version)))
	if tables := eng.Tables(); len(tables) > 0 {
		fmt.Printf("Loaded %d table(s): %s\n\n", len(tables), strings.Join(tables, ", "))
	}
	repl(eng)
}

// repl reads statements line by line, accumulating until a terminating
// semicolon, and prints each result.
func repl(eng *engine.Engine) {
	reader := bufio.NewReader(os.Stdin)
	var inputBuffer strings.Builder

	for {
		if inputBuffer.Len() == 0 {
			fmt.Print("pesadb> ")
		} else {
			fmt.Print("   ...> ")
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			continue
		}

		line = strings.TrimRight(line, "\n\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if inputBuffer.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ".") {
			handleDotCommand(strings.TrimSpace(line), eng)
			continue
		}

		inputBuffer.WriteString(line)
		input := strings.TrimSpace(inputBuffer.String())
		if !strings.HasSuffix(input, ";") {
			inputBuffer.WriteString(" ")
			continue
		}
		inputBuffer.Reset()

		executeSQL(input, eng)
	}
}

func handleDotCommand(cmd string, eng *engine.Engine) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case ".help":
		fmt.Println("\nAvailable commands:")
		for _, c := range dotCommands {
			fmt.Printf("  %-12s %s\n", c.cmd, c.desc)
		}
		fmt.Println("\nSQL Commands:")
		fmt.Println("  CREATE TABLE name (column definitions)")
		fmt.Println("  INSERT INTO table (columns) VALUES (values)")
		fmt.Println("  SELECT columns FROM table [JOIN table ON condition] [WHERE condition]")
		fmt.Println("  UPDATE table SET column = value [WHERE condition]")
		fmt.Println("  DELETE FROM table [WHERE condition]")
		fmt.Println()

	case ".quit", ".exit":
		eng.Close()
		fmt.Println("Goodbye!")
		os.Exit(0)

	case ".tables":
		tables := eng.Tables()
		if len(tables) == 0 {
			fmt.Println("No tables found.")
			return
		}
		fmt.Println("Tables:")
		for _, name := range tables {
			fmt.Printf("  %s\n", name)
		}

	case ".schema":
		if len(parts) > 1 {
			showTableSchema(parts[1], eng)
			return
		}
		for _, name := range eng.Tables() {
			showTableSchema(name, eng)
		}

	case ".clear":
		fmt.Print("\033[H\033[2J")

	default:
		fmt.Printf("Unknown command: %s\n", parts[0])
		fmt.Println("Type '.help' for available commands.")
	}
}

// showTableSchema prints a table definition in CREATE TABLE form.
func showTableSchema(name string, eng *engine.Engine) {
	def, ok := eng.Table(name)
	if !ok {
		fmt.Printf("Table '%s' not found.\n", name)
		return
	}

	fmt.Printf("CREATE TABLE %s (\n", name)
	for i, col := range def.Columns {
		var suffix strings.Builder
		if col.PrimaryKey {
			suffix.WriteString(" PRIMARY KEY")
		} else if col.NotNull {
			suffix.WriteString(" NOT NULL")
		}
		if col.Default != nil {
			if col.Default.Now {
				suffix.WriteString(" DEFAULT NOW()")
			} else {
				fmt.Fprintf(&suffix, " DEFAULT %s", col.Default.Value)
			}
		}
		if col.Reference != nil {
			fmt.Fprintf(&suffix, " REFERENCES %s(%s)", col.Reference.Table, col.Reference.Column)
		}
		comma := ","
		if i == len(def.Columns)-1 {
			comma = ""
		}
		fmt.Printf("  %s %s%s%s\n", col.Name, col.Type, suffix.String(), comma)
	}
	fmt.Println(");")
}

// executeSQL runs one statement and renders the outcome.
func executeSQL(input string, eng *engine.Engine) {
	result, err := eng.Execute(input)
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		return
	}

	if len(result.Columns) == 0 {
		fmt.Println(result.Message)
		return
	}
	fmt.Println(resultStyle.Render(strings.TrimRight(result.String(), "\n")))
}
