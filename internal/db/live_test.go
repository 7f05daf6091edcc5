package db

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// TestLiveDatabase opens the real voiceplanner database and reads notes/tasks.
// Skipped if the database doesn't exist.
func TestLiveDatabase(t *testing.T) {
	dbPath := DefaultDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Skip("database not found at", dbPath)
	}

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	notes, err := store.Notes(ctx)
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	fmt.Printf("Notes: %d\n", len(notes))
	for i, n := range notes {
		if i == 5 {
			break
		}
		fmt.Printf("  %d. [%s] %q audio=%v\n", n.ID,
			n.Time().Format("2006-01-02 15:04:05"), n.Text, n.HasAudio())
	}

	tasks, err := store.Tasks(ctx)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	fmt.Printf("Tasks: %d\n", len(tasks))
	for _, task := range tasks {
		fmt.Printf("  %d. %s (%s, %s) labels=%v\n", task.ID, task.Title,
			task.Status, task.Priority, task.Labels)
	}
}
