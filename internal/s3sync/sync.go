package s3sync

import (
	"context"
	"fmt"
	"strings"

	"logreport/internal/proc"
)

// Client mirrors between S3 prefixes and local folders through `aws s3 sync`.
type Client struct {
	Runner proc.Runner
	Bin    string // default "aws"
	// Delete removes destination objects that are absent from the source.
	Delete    bool
	ExtraArgs []string
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "aws"
	}
	return c.Bin
}

// URI formats an s3:// URI for a bucket and optional prefix, always with a
// trailing slash so sync treats it as a folder.
func URI(bucket, prefix string) string {
	bucket = strings.TrimSuffix(strings.TrimPrefix(bucket, "s3://"), "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return "s3://" + bucket + "/"
	}
	return "s3://" + bucket + "/" + prefix + "/"
}

func dirArg(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// Command returns the invocation that mirrors src to dst.
func (c *Client) Command(src, dst string) proc.Command {
	args := []string{"s3", "sync", src, dst}
	if c.Delete {
		args = append(args, "--delete")
	}
	args = append(args, c.ExtraArgs...)
	return proc.Command{Name: c.bin(), Args: args}
}

// SyncLogs mirrors s3://<bucket>/<site>/ into localDir.
func (c *Client) SyncLogs(ctx context.Context, bucket, site, localDir string) error {
	cmd := c.Command(URI(bucket, site), dirArg(localDir))
	if err := c.Runner.Run(ctx, cmd, nil); err != nil {
		return fmt.Errorf("sync logs for %s: %w", site, err)
	}
	return nil
}

// SyncReports mirrors the local reports tree to s3://<bucket>/.
func (c *Client) SyncReports(ctx context.Context, reportsDir, bucket string) error {
	cmd := c.Command(dirArg(reportsDir), URI(bucket, ""))
	if err := c.Runner.Run(ctx, cmd, nil); err != nil {
		return fmt.Errorf("sync reports: %w", err)
	}
	return nil
}
