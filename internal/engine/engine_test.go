package engine

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/BadgerOps/siteport/internal/store"
	"github.com/BadgerOps/siteport/internal/wpcli/wpclitest"
	"github.com/BadgerOps/siteport/internal/wpconfig"
	"github.com/klauspost/compress/gzip"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

const importedDump = "-- exported by siteport\n" +
	"CREATE TABLE `imp_options` (id int);\n" +
	"CREATE TABLE `imp_posts` (id int);\n" +
	"CREATE TABLE `imp_users` (id int);\n" +
	`-- option "siteurl" "https://src.example"` + "\n" +
	`-- option "home" "https://src.example"` + "\n"

// nativeArchive lays out a pre-extracted siteport export.
func nativeArchive() map[string]string {
	return map[string]string{
		"siteport.json":                         `{"version":"1.0","site_url":"https://src.example"}`,
		"database.sql":                          importedDump,
		"wp-content/plugins/shared/new.php":     "<?php // new",
		"wp-content/themes/new-theme/style.css": "/* new */",
		"wp-content/uploads/2024/a.jpg":         "jpg",
	}
}

type fixture struct {
	dir     string
	site    string
	content string
	config  string
	fake    *wpclitest.Fake
	store   *store.Store
	opts    Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	site := filepath.Join(dir, "site")
	writeFiles(t, site, map[string]string{
		"wp-config.php":                         "<?php\n$table_prefix = 'wp_';\n",
		"wp-content/object-cache.php":           "<?php // host cache",
		"wp-content/plugins/keep-me/keep.php":   "<?php // keep",
		"wp-content/plugins/shared/old.php":     "<?php // old",
		"wp-content/themes/old-theme/style.css": "/* old */",
		"wp-content/uploads/old.jpg":            "old",
	})

	fake := wpclitest.New("wp_options", "wp_posts", "wp_users", "wp_usermeta")
	fake.ConfigPath = filepath.Join(site, "wp-config.php")
	fake.Options["siteurl"] = "https://dest.example"
	fake.Options["home"] = "https://dest.example"

	st, err := store.New(":memory:", testLogger())
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return &fixture{
		dir:     dir,
		site:    site,
		content: filepath.Join(site, "wp-content"),
		config:  fake.ConfigPath,
		fake:    fake,
		store:   st,
		opts: Options{
			SitePath:    site,
			WorkDir:     filepath.Join(dir, "work"),
			BackupDir:   filepath.Join(dir, "backups"),
			SnapshotDir: filepath.Join(dir, "snapshots"),
			Binaries:    map[string]string{"wp": "wp"},
			Recorder:    st,
			LookPath:    func(file string) (string, error) { return "/usr/local/bin/" + file, nil },
			FreeSpace:   func(string) (uint64, error) { return 1 << 40, nil },
			Logger:      testLogger(),
		},
	}
}

func (f *fixture) archive(t *testing.T, files map[string]string) string {
	t.Helper()
	p := filepath.Join(f.dir, "archive")
	writeFiles(t, p, files)
	return p
}

func (f *fixture) engine() *Engine {
	return New(f.fake, f.opts)
}

func (f *fixture) prefix(t *testing.T) string {
	t.Helper()
	p, err := wpconfig.ReadPrefix(f.config)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) workEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.opts.WorkDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (f *fixture) dbCalls() []string {
	var out []string
	for _, c := range f.fake.Calls {
		if strings.HasPrefix(c, "db ") {
			out = append(out, c)
		}
	}
	return out
}

func TestImportCommits(t *testing.T) {
	f := newFixture(t)
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	if run.Adapter != "native" {
		t.Errorf("Adapter = %q, want native", run.Adapter)
	}
	if !run.Committed() {
		t.Errorf("Outcome state = %v, want committed", run.Outcome.State)
	}
	if got := f.prefix(t); got != "imp_" {
		t.Errorf("table prefix = %q, want imp_", got)
	}
	if got := strings.Join(f.fake.TableNames(), ","); got != "imp_options,imp_posts,imp_users" {
		t.Errorf("tables = %s", got)
	}
	if got := f.fake.Options["siteurl"]; got != "https://dest.example" {
		t.Errorf("siteurl = %q, want destination URL", got)
	}
	if got := f.fake.Options["home"]; got != "https://dest.example" {
		t.Errorf("home = %q, want destination URL", got)
	}
	if len(f.fake.SearchReplaces) == 0 {
		t.Error("no search-replace calls were made")
	}

	// Content mirrored, object-cache.php left alone
	for _, want := range []string{"plugins/shared/new.php", "themes/new-theme/style.css", "uploads/2024/a.jpg", "object-cache.php"} {
		if !exists(filepath.Join(f.content, want)) {
			t.Errorf("%s missing after import", want)
		}
	}
	for _, gone := range []string{"plugins/shared/old.php", "plugins/keep-me", "uploads/old.jpg"} {
		if exists(filepath.Join(f.content, gone)) {
			t.Errorf("%s survived the mirror", gone)
		}
	}

	if exists(run.Sandbox) {
		t.Errorf("sandbox %s not removed after commit", run.Sandbox)
	}
	if run.SandboxRetained {
		t.Error("SandboxRetained = true after commit")
	}
	if entries, _ := os.ReadDir(f.opts.SnapshotDir); len(entries) != 0 {
		t.Errorf("emergency snapshot kept after commit: %d file(s)", len(entries))
	}
	if run.Tracker.Phase() != PhaseComplete {
		t.Errorf("phase = %q, want complete", run.Tracker.Phase())
	}

	rec, err := f.store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if rec.Status != store.StatusCommitted || rec.Format != "native" || rec.TablePrefix != "imp_" {
		t.Errorf("recorded run = %+v", rec)
	}
	if rec.TablesBefore != 4 || rec.TablesAfter != 3 {
		t.Errorf("recorded table counts = %d/%d, want 4/3", rec.TablesBefore, rec.TablesAfter)
	}
	if run.Extracted == nil || run.Extracted.Files != 5 {
		t.Errorf("Extracted = %+v, want 5 files", run.Extracted)
	}
	if rec.FilesExtracted != 5 {
		t.Errorf("recorded files extracted = %d, want 5", rec.FilesExtracted)
	}
	if run.Multisite || rec.Multisite {
		t.Error("single site recorded as multisite")
	}
	for _, call := range f.fake.Calls {
		if strings.HasSuffix(call, "--network") {
			t.Errorf("single site search-replace ran network wide: %s", call)
		}
	}
}

func TestImportWritesBackupsFirst(t *testing.T) {
	f := newFixture(t)
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(run.DBBackup), "db-") || !strings.HasSuffix(run.DBBackup, ".sql.gz") {
		t.Errorf("DBBackup = %q", run.DBBackup)
	}
	fh, err := os.Open(run.DBBackup)
	if err != nil {
		t.Fatalf("opening db backup: %v", err)
	}
	defer func() { _ = fh.Close() }()
	zr, err := gzip.NewReader(fh)
	if err != nil {
		t.Fatalf("db backup is not gzip: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading db backup: %v", err)
	}
	if !strings.Contains(string(body), "CREATE TABLE `wp_options`") {
		t.Errorf("db backup does not hold the pre-import tables:\n%s", body)
	}

	if !strings.HasPrefix(filepath.Base(run.ContentBackup), "wp-content-") {
		t.Errorf("ContentBackup = %q", run.ContentBackup)
	}
	if !exists(filepath.Join(run.ContentBackup, "plugins", "shared", "old.php")) {
		t.Error("content backup missing pre-import files")
	}

	// The backup export must come before the reset
	var exportAt, resetAt = -1, -1
	for i, c := range f.fake.Calls {
		if exportAt < 0 && strings.HasPrefix(c, "db export") {
			exportAt = i
		}
		if resetAt < 0 && c == "db reset" {
			resetAt = i
		}
	}
	if exportAt < 0 || resetAt < 0 || exportAt > resetAt {
		t.Errorf("export at %d, reset at %d; want export first", exportAt, resetAt)
	}
}

func TestImportPreservesExtensions(t *testing.T) {
	f := newFixture(t)
	f.opts.Preserve = true
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	if got := strings.Join(run.Preservation.Plugins, ","); got != "keep-me" {
		t.Errorf("preserved plugins = %q, want keep-me", got)
	}
	if got := strings.Join(run.Preservation.Themes, ","); got != "old-theme" {
		t.Errorf("preserved themes = %q, want old-theme", got)
	}
	if !exists(filepath.Join(f.content, "plugins", "keep-me", "keep.php")) {
		t.Error("preserved plugin not restored")
	}
	if !exists(filepath.Join(f.content, "themes", "old-theme", "style.css")) {
		t.Error("preserved theme not restored")
	}
	if got := strings.Join(f.fake.Deactivated, ","); got != "keep-me" {
		t.Errorf("deactivated = %q, want keep-me", got)
	}
}

func TestImportRollsBackFailedImport(t *testing.T) {
	f := newFixture(t)
	f.fake.ImportHook = func(p string) error {
		if filepath.Base(p) == "database.sql" {
			return wpclitest.ErrForced
		}
		return nil
	}
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if !importerr.Is(err, importerr.Import) {
		t.Fatalf("Import() error = %v, want import error", err)
	}
	if !errors.Is(err, wpclitest.ErrForced) {
		t.Errorf("error chain lost the cause: %v", err)
	}

	if got := strings.Join(f.fake.TableNames(), ","); got != "wp_options,wp_posts,wp_usermeta,wp_users" {
		t.Errorf("tables after rollback = %s", got)
	}
	if got := f.fake.Options["siteurl"]; got != "https://dest.example" {
		t.Errorf("siteurl after rollback = %q", got)
	}
	if got := f.prefix(t); got != "wp_" {
		t.Errorf("table prefix after rollback = %q, want wp_", got)
	}
	if !exists(filepath.Join(f.content, "plugins", "shared", "old.php")) {
		t.Error("destination content changed by a failed import")
	}
	if !run.SandboxRetained || !exists(run.Sandbox) {
		t.Errorf("sandbox %q not retained after failure", run.Sandbox)
	}
	if run.Outcome == nil || !run.Outcome.Restored {
		t.Errorf("outcome = %+v, want restored", run.Outcome)
	}

	rec, err := f.store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if rec.Status != store.StatusFailed || rec.ErrorKind != string(importerr.Import) || !rec.RestoreAttempted {
		t.Errorf("recorded run = %+v", rec)
	}
	if rec.SandboxPath != run.Sandbox {
		t.Errorf("recorded sandbox = %q, want %q", rec.SandboxPath, run.Sandbox)
	}
}

func TestImportRestoresContentWhenLaterStepFails(t *testing.T) {
	f := newFixture(t)
	f.opts.Preserve = true
	f.fake.DeactivateErr = wpclitest.ErrForced
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if !importerr.Is(err, importerr.Executor) {
		t.Fatalf("Import() error = %v, want executor error", err)
	}
	if !run.ContentRestored {
		t.Error("ContentRestored = false")
	}
	if !exists(filepath.Join(f.content, "plugins", "shared", "old.php")) {
		t.Error("pre-import content not restored")
	}
	if exists(filepath.Join(f.content, "plugins", "shared", "new.php")) {
		t.Error("imported content survived the rollback")
	}
	if got := f.prefix(t); got != "wp_" {
		t.Errorf("table prefix after rollback = %q, want wp_", got)
	}
	if got := strings.Join(f.fake.TableNames(), ","); got != "wp_options,wp_posts,wp_usermeta,wp_users" {
		t.Errorf("tables after rollback = %s", got)
	}
}

// writeSparseTar writes a valid native tar archive padded to size bytes.
func writeSparseTar(t *testing.T, p string, size int64) {
	t.Helper()
	fh, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(fh)
	for name, body := range nativeArchive() {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := fh.Truncate(size); err != nil {
		t.Fatal(err)
	}
	if err := fh.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestImportInsufficientSpaceFailsBeforeExtraction(t *testing.T) {
	f := newFixture(t)
	f.opts.FreeSpace = func(string) (uint64, error) { return 100 << 20, nil }
	src := filepath.Join(f.dir, "site-backup.tar")
	writeSparseTar(t, src, 50<<20)

	run, err := f.engine().Import(context.Background(), src)
	if !importerr.Is(err, importerr.Resource) {
		t.Fatalf("Import() error = %v, want resource error", err)
	}
	if run.Sandbox != "" {
		t.Errorf("sandbox created: %s", run.Sandbox)
	}
	if entries := f.workEntries(t); len(entries) != 0 {
		t.Errorf("work dir not empty: %v", entries)
	}
	if calls := f.dbCalls(); len(calls) != 0 {
		t.Errorf("database touched: %v", calls)
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error %q does not state the requirement", err)
	}
}

func TestImportForcedFormatSkipsDetection(t *testing.T) {
	f := newFixture(t)
	f.opts.Format = "jetpack"
	// Jetpack layout without its meta.json marker
	src := f.archive(t, map[string]string{
		"sql/imp_options.sql":           "CREATE TABLE `imp_options` (id int);\n" + `-- option "siteurl" "https://src.example"` + "\n" + `-- option "home" "https://src.example"` + "\n",
		"sql/imp_posts.sql":             "CREATE TABLE `imp_posts` (id int);\n",
		"sql/imp_users.sql":             "CREATE TABLE `imp_users` (id int);\n",
		"wp-content/uploads/2024/a.jpg": "jpg",
	})

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if run.Adapter != "jetpack" {
		t.Errorf("Adapter = %q, want jetpack", run.Adapter)
	}
	if rej := run.Diagnostics.Rejections(); len(rej) != 0 {
		t.Errorf("forced format recorded rejections: %v", rej)
	}
	var warned bool
	for _, w := range run.Warnings {
		if w.Source == "format" && strings.Contains(w.Message, "meta.json") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("missing signature warning, warnings = %v", run.Warnings)
	}
	if got := f.prefix(t); got != "imp_" {
		t.Errorf("table prefix = %q, want imp_", got)
	}
}

func TestImportForcedFormatWrongLayout(t *testing.T) {
	f := newFixture(t)
	f.opts.Format = "jetpack"
	src := f.archive(t, nativeArchive())
	before := f.fake.TableNames()

	run, err := f.engine().Import(context.Background(), src)
	if !importerr.Is(err, importerr.Discovery) {
		t.Fatalf("Import() error = %v, want discovery error", err)
	}
	if run.Sandbox == "" || !run.SandboxRetained {
		t.Errorf("sandbox = %q retained = %v, want extracted and kept", run.Sandbox, run.SandboxRetained)
	}
	if after := f.fake.TableNames(); strings.Join(after, ",") != strings.Join(before, ",") {
		t.Errorf("tables changed before discovery failed: %v", after)
	}
}

func TestImportUnknownFormatName(t *testing.T) {
	f := newFixture(t)
	f.opts.Format = "nope"
	src := f.archive(t, nativeArchive())

	if _, err := f.engine().Import(context.Background(), src); !importerr.Is(err, importerr.Validation) {
		t.Fatalf("Import() error = %v, want validation error", err)
	}
}

func TestImportNoAdapterRecordsEveryRejection(t *testing.T) {
	f := newFixture(t)
	src := f.archive(t, map[string]string{"readme.txt": "not a backup"})

	run, err := f.engine().Import(context.Background(), src)
	if !importerr.Is(err, importerr.Validation) {
		t.Fatalf("Import() error = %v, want validation error", err)
	}
	if got := len(run.Diagnostics.Rejections()); got != 5 {
		t.Errorf("rejections = %d, want 5", got)
	}

	diags, err := f.store.ListDiagnostics(run.ID)
	if err != nil {
		t.Fatalf("ListDiagnostics() failed: %v", err)
	}
	var rejections int
	for _, d := range diags {
		if d.Kind == store.DiagRejection {
			rejections++
		}
	}
	if rejections != 5 {
		t.Errorf("recorded rejections = %d, want 5", rejections)
	}
}

func TestImportPreflightFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture)
		kind   importerr.Kind
	}{
		{"missing wp binary", func(f *fixture) {
			f.opts.LookPath = func(string) (string, error) { return "", errors.New("not found") }
		}, importerr.Executor},
		{"site not installed", func(f *fixture) { f.fake.Installed = false }, importerr.Executor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(f)
			src := f.archive(t, nativeArchive())

			run, err := f.engine().Import(context.Background(), src)
			if !importerr.Is(err, tt.kind) {
				t.Fatalf("Import() error = %v, want %s", err, tt.kind)
			}
			if run.Sandbox != "" {
				t.Error("sandbox created despite failed preflight")
			}
			if calls := f.dbCalls(); len(calls) != 0 {
				t.Errorf("database touched: %v", calls)
			}
		})
	}
}

func TestImportMaintenanceMode(t *testing.T) {
	f := newFixture(t)
	f.opts.Maintenance = true
	src := f.archive(t, nativeArchive())

	if _, err := f.engine().Import(context.Background(), src); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	var on, off bool
	for _, c := range f.fake.Calls {
		switch c {
		case "maintenance-mode true":
			on = true
		case "maintenance-mode false":
			off = on
		}
	}
	if !on || !off {
		t.Errorf("maintenance mode not toggled around the import: %v", f.fake.Calls)
	}
	if f.fake.Maintenance {
		t.Error("maintenance mode left enabled")
	}
}

func TestImportKeepSandbox(t *testing.T) {
	f := newFixture(t)
	f.opts.KeepSandbox = true
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if !run.SandboxRetained || !exists(filepath.Join(run.Sandbox, "database.sql")) {
		t.Errorf("sandbox %q not kept", run.Sandbox)
	}
}

func TestImportConsolidatesPerTableDumps(t *testing.T) {
	f := newFixture(t)
	src := f.archive(t, map[string]string{
		"meta.json":                     `{"site":"src"}`,
		"sql/imp_options.sql":           "CREATE TABLE `imp_options` (id int);\n" + `-- option "siteurl" "https://src.example"` + "\n" + `-- option "home" "https://src.example"` + "\n",
		"sql/imp_posts.sql":             "CREATE TABLE `imp_posts` (id int);\n",
		"sql/imp_users.sql":             "CREATE TABLE `imp_users` (id int);\n",
		"wp-content/uploads/2024/a.jpg": "jpg",
	})

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if run.Adapter != "jetpack" {
		t.Errorf("Adapter = %q, want jetpack", run.Adapter)
	}
	if !run.Consolidated || filepath.Base(run.SQLFile) != "consolidated.sql" {
		t.Errorf("SQLFile = %q, Consolidated = %v", run.SQLFile, run.Consolidated)
	}
	if got := f.prefix(t); got != "imp_" {
		t.Errorf("table prefix = %q, want imp_", got)
	}
	if !exists(filepath.Join(f.content, "uploads", "2024", "a.jpg")) {
		t.Error("content not mirrored")
	}
}

func TestImportSkipSearchReplace(t *testing.T) {
	f := newFixture(t)
	f.opts.SkipSearchReplace = true
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if len(f.fake.SearchReplaces) != 0 {
		t.Errorf("search-replace ran in reduced mode: %v", f.fake.SearchReplaces)
	}
	if got := f.fake.Options["siteurl"]; got != "https://dest.example" {
		t.Errorf("siteurl = %q, want destination URL", got)
	}
	var warned bool
	for _, w := range run.Warnings {
		if w.Source == "urls" {
			warned = true
		}
	}
	if !warned {
		t.Error("no warning recorded for skipped search-replace")
	}
}

func TestImportMultisiteReplacesAcrossNetwork(t *testing.T) {
	f := newFixture(t)
	f.fake.Multisite = true
	src := f.archive(t, nativeArchive())

	run, err := f.engine().Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if !run.Multisite {
		t.Error("Multisite = false for a network install")
	}
	if run.URLs == nil || !run.URLs.Network {
		t.Errorf("URLs = %+v, want network alignment", run.URLs)
	}

	var network int
	for _, call := range f.fake.Calls {
		if strings.HasPrefix(call, "search-replace ") {
			if !strings.HasSuffix(call, " --network") {
				t.Errorf("search-replace without --network: %s", call)
			}
			network++
		}
	}
	if network == 0 {
		t.Error("no search-replace calls were made")
	}

	rec, err := f.store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if !rec.Multisite {
		t.Error("multisite marker not recorded")
	}
}

func TestImportCancelled(t *testing.T) {
	f := newFixture(t)
	src := f.archive(t, nativeArchive())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.engine().Import(ctx, src)
	if err == nil {
		t.Fatal("Import() succeeded with a cancelled context")
	}
	if run.Tracker.Phase() != PhaseCancelled {
		t.Errorf("phase = %q, want cancelled", run.Tracker.Phase())
	}
	if calls := f.dbCalls(); len(calls) != 0 {
		t.Errorf("database touched: %v", calls)
	}
}
