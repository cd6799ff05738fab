package utilities

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var logMu sync.Mutex

// CreateLog agrega una línea al archivo diario <dir>/<prefix>_<yyyymmdd>.log.
// Un dir vacío desactiva el registro.
func CreateLog(dir, prefix, message string) error {
	if dir == "" {
		return nil
	}
	now := time.Now()
	filename := filepath.Join(dir, prefix+"_"+now.Format("20060102")+".log")

	logMu.Lock()
	defer logMu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creando carpeta de logs: %w", err)
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("abriendo %s: %w", filename, err)
	}
	defer f.Close()

	line := now.Format("15:04:05") + " - " + strings.TrimRight(message, "\r\n") + "\n"
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("escribiendo %s: %w", filename, err)
	}
	return nil
}
