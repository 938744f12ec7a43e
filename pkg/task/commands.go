package task

// CommandID names one operation a front end can run.
type CommandID string

const (
	CommandRefresh   CommandID = "refresh"
	CommandConfigure CommandID = "configure"
	CommandSync      CommandID = "sync"
	CommandCopyDirs  CommandID = "copy-dirs"
	CommandAll       CommandID = "all"
	CommandStatus    CommandID = "status"
)

type Command struct {
	ID    CommandID `json:"id"`
	Key   string    `json:"key"`
	Label string    `json:"label"`
}

// Commands is the menu in display order. Key is the single letter used by
// the interactive loop.
var Commands = []Command{
	{ID: CommandRefresh, Key: "u", Label: "Update remote file cache"},
	{ID: CommandConfigure, Key: "c", Label: "Configure directories"},
	{ID: CommandSync, Key: "s", Label: "Sync source directory"},
	{ID: CommandCopyDirs, Key: "d", Label: "Sync copy directories"},
	{ID: CommandAll, Key: "a", Label: "Sync everything"},
	{ID: CommandStatus, Key: "t", Label: "Show status"},
}

func Lookup(keyOrID string) (Command, bool) {
	for _, c := range Commands {
		if c.Key == keyOrID || string(c.ID) == keyOrID {
			return c, true
		}
	}
	return Command{}, false
}

// Result summarises one command run.
type Result struct {
	Command      CommandID `json:"command"`
	Pending      int       `json:"pending"`
	Processed    int       `json:"processed"`
	RemoteCopied int       `json:"remote_copied"`
	TargetCopied int       `json:"target_copied"`
	Warnings     []string  `json:"warnings"`
	CacheEntries int       `json:"cache_entries"`
	Cancelled    bool      `json:"cancelled"`
	Skipped      bool      `json:"skipped"`
	DryRun       bool      `json:"dry_run"`
	Duration     string    `json:"duration"`
}
