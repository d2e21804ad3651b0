// Package printer 负责 CLI 的人类可读输出
package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"c2fs/pkg/core"
	"c2fs/pkg/vfs"
)

// PrintObject 打印一个 CA 对象的结构
// Blob 只打印元数据，内容请用 cat 取出
func PrintObject(w io.Writer, obj core.Object) error {
	switch o := obj.(type) {
	case *core.Commit:
		return printCommit(w, o)
	case *core.Tree:
		return printTree(w, o)
	case *core.Blob:
		fmt.Fprintf(w, "Type: Blob\n")
		fmt.Fprintf(w, "Hash: %s\n", o.ID())
		fmt.Fprintf(w, "Size: %s\n", FmtSize(o.Size()))
		return nil
	default:
		return fmt.Errorf("unknown object type: %s", obj.Type())
	}
}

func printCommit(w io.Writer, c *core.Commit) error {
	fmt.Fprintf(w, "Type:    Commit\n")
	fmt.Fprintf(w, "Hash:    %s\n", c.ID())
	fmt.Fprintf(w, "Tree:    %s\n", c.Tree())
	fmt.Fprintf(w, "Time:    %s\n", time.Unix(0, c.Timestamp).UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(w, "\n%s\n", c.Message)
	return nil
}

func printTree(w io.Writer, t *core.Tree) error {
	fmt.Fprintf(w, "Type: Tree\n\n")
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tHASH\tSIZE\tNAME\n")
	for _, e := range t.Entries {
		// 模拟 git ls-tree 的输出格式
		size := "-"
		if e.Type == core.EntryFile {
			size = FmtSize(e.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Type, e.Hash.Hash.String()[:8], size, e.Name)
	}
	return tw.Flush()
}

// PrintListing 打印一层目录，目录名带 "/" 后缀
func PrintListing(w io.Writer, infos []vfs.Info) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, info := range infos {
		name, size := info.Name, "-"
		if info.IsDir() {
			name += "/"
		} else if info.HasSize {
			size = FmtSize(info.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Type, size, name)
	}
	return tw.Flush()
}

func FmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
