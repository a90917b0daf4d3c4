package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	timeoutMS int
	inputJSON string
	varPairs  []string
)

func main() {
	root := &cobra.Command{
		Use:   "script-cli",
		Short: "CLI client for script-sandbox",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SCRIPT_SANDBOX_API_KEY"), "API key")

	execCmd := &cobra.Command{
		Use:   "exec [source]",
		Short: "Execute a guest script (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExec,
	}
	execCmd.Flags().IntVar(&timeoutMS, "timeout-ms", 10000, "Execution timeout in milliseconds")
	execCmd.Flags().StringVar(&inputJSON, "input", "null", "Input value as JSON")
	execCmd.Flags().StringArrayVar(&varPairs, "var", nil, "Bound variable as name=JSON (repeatable)")
	root.AddCommand(execCmd)

	execFileCmd := &cobra.Command{
		Use:   "exec-file [file]",
		Short: "Execute a guest script from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExecFile,
	}
	execFileCmd.Flags().IntVar(&timeoutMS, "timeout-ms", 10000, "Execution timeout in milliseconds")
	execFileCmd.Flags().StringVar(&inputJSON, "input", "null", "Input value as JSON")
	execFileCmd.Flags().StringArrayVar(&varPairs, "var", nil, "Bound variable as name=JSON (repeatable)")
	root.AddCommand(execFileCmd)

	validateCmd := &cobra.Command{
		Use:   "validate [source]",
		Short: "Run static validation without executing",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	root.AddCommand(validateCmd)

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE:  runList,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func sourceFromArgsOrStdin(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func runExec(cmd *cobra.Command, args []string) error {
	source, err := sourceFromArgsOrStdin(args)
	if err != nil {
		return err
	}
	return executeSource(source)
}

func runExecFile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	return executeSource(string(data))
}

func executeSource(source string) error {
	var input any
	if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
		return fmt.Errorf("parsing --input: %w", err)
	}

	variables := map[string]any{}
	for _, pair := range varPairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid --var %q, want name=JSON", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			// Bare words are a common convenience; treat them as strings.
			value = raw
		}
		variables[name] = value
	}

	payload := map[string]any{
		"sourceText":      source,
		"inputValue":      input,
		"boundVariables":  variables,
		"timeoutMs":       timeoutMS,
		"guestLanguageId": "javascript",
	}

	result, err := postJSON("/execute", payload)
	if err != nil {
		return err
	}

	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	if status, ok := result["status"].(string); ok && status != "success" {
		os.Exit(1)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	source, err := sourceFromArgsOrStdin(args)
	if err != nil {
		return err
	}

	result, err := postJSON("/validate", map[string]any{"sourceText": source})
	if err != nil {
		return err
	}

	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	if allowed, ok := result["allowed"].(bool); ok && !allowed {
		os.Exit(1)
	}
	return nil
}

func postJSON(path string, payload any) (map[string]any, error) {
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 70 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	req, _ := http.NewRequest(http.MethodGet, serverURL+"/executions", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}
