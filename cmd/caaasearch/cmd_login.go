package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caaasearch/internal/browser"
	"caaasearch/internal/config"
)

// loginCmd captures a fresh member session into the cookie jar.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Capture an archive session into the cookie jar",
	Long: `Opens a visible browser on the archive's sign-in page so you can log in
as a member, then saves the session cookies to the configured cookie jar.

Running workers pick up a rotated jar automatically, so re-running login is
all it takes when searches start failing with an expired session.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	jarPath := cfg.Browser.CookieFile
	if jarPath == "" {
		return fmt.Errorf("no cookie_file configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// A visible instance with no jar injected: the operator supplies the
	// session, not the stale cookies.
	loginCfg := cfg.Browser
	loginCfg.Headless = false
	loginCfg.CookieFile = ""
	mgr := browser.NewManager(loginCfg)
	defer func() { _ = mgr.Close() }()

	page, err := mgr.OpenPage(ctx, config.DefaultLoginURL)
	if err != nil {
		return fmt.Errorf("failed to open sign-in page: %w", err)
	}
	defer func() { _ = page.Close() }()

	stdin := bufio.NewReader(os.Stdin)
	fmt.Println("A browser window is open on the archive's sign-in page.")
	fmt.Println("Log in with your member credentials and wait for the page to settle,")
	fmt.Print("then press ENTER here to capture the session... ")
	if _, err := stdin.ReadString('\n'); err != nil {
		return fmt.Errorf("capture aborted: %w", err)
	}

	if info, ierr := page.Info(); ierr == nil && strings.Contains(info.URL, "pg=login") {
		fmt.Println("The browser is still on the sign-in page; the session may not be valid.")
		fmt.Print("Capture anyway? [y/N] ")
		answer, _ := stdin.ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			return fmt.Errorf("login not completed")
		}
	}

	cookies, err := mgr.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("the browser holds no cookies; log in before pressing ENTER")
	}

	if err := browser.SaveCookieFile(jarPath, cookies); err != nil {
		return err
	}
	logger.Info("Cookie jar written",
		zap.String("path", jarPath),
		zap.Int("cookies", len(cookies)))
	fmt.Printf("Saved %d cookies to %s\n", len(cookies), jarPath)
	_ = mgr.Close()

	// Prove the jar works the way workers will use it: a headless instance
	// loading the saved jar must reach the search page without being
	// bounced back to sign-in.
	fmt.Print("Verifying the captured session... ")
	if err := verifySession(ctx); err != nil {
		fmt.Println("failed")
		return fmt.Errorf("session verification failed, try logging in again (jar kept at %s): %w", jarPath, err)
	}
	fmt.Println("ok")
	fmt.Println("Pending searches will pick up the new session automatically.")
	return nil
}

// verifySession loads the saved jar into a fresh headless browser and checks
// the archive serves the member search page instead of a login redirect.
func verifySession(ctx context.Context) error {
	verifyCfg := cfg.Browser
	verifyCfg.Headless = true
	mgr := browser.NewManager(verifyCfg)
	defer func() { _ = mgr.Close() }()

	searchURL := cfg.Retrieval.SearchURL
	if searchURL == "" {
		searchURL = config.DefaultSearchURL
	}
	page, err := mgr.OpenPage(ctx, searchURL)
	if err != nil {
		return err
	}
	defer func() { _ = page.Close() }()

	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("failed to inspect page: %w", err)
	}
	if strings.Contains(info.URL, "pg=login") {
		return fmt.Errorf("archive redirected to sign-in")
	}
	return nil
}
