package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/types"
)

// VolumeManager owns the append-only archive: a sequence of numbered
// volumes, each a JSONL file of Memory records, sealed once it reaches
// maxBytes. The archive backs the raw-text fallback scan and is the
// durability guarantee behind every put.
type VolumeManager struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	log      zerolog.Logger

	current    *os.File
	currentNum int
	currentLen int64
}

// OpenVolumeManager opens dir (creating it if absent), finds or starts the
// active volume, and trims a torn tail line if the previous process crashed
// mid-write.
func OpenVolumeManager(dir string, maxBytes int64, log zerolog.Logger) (*VolumeManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Storage, "create archive dir", err)
	}
	vm := &VolumeManager{dir: dir, maxBytes: maxBytes, log: log}
	if err := vm.openOrCreateActive(); err != nil {
		return nil, err
	}
	return vm, nil
}

func volumeName(n int) string { return fmt.Sprintf("vol-%04d", n) }

// Count returns the number of volumes (active plus sealed) in the archive,
// for the controller's stats report.
func (vm *VolumeManager) Count() (int, error) {
	entries, err := os.ReadDir(vm.dir)
	if err != nil {
		return 0, errs.Wrap(errs.Storage, "list archive dir", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".active") || strings.HasSuffix(e.Name(), ".sealed") {
			n++
		}
	}
	return n, nil
}

func (vm *VolumeManager) activePath(n int) string { return filepath.Join(vm.dir, volumeName(n)+".active") }
func (vm *VolumeManager) sealedPath(n int) string { return filepath.Join(vm.dir, volumeName(n)+".sealed") }

func (vm *VolumeManager) openOrCreateActive() error {
	entries, err := os.ReadDir(vm.dir)
	if err != nil {
		return errs.Wrap(errs.Storage, "list archive dir", err)
	}

	highest := -1
	activeFound := -1
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "vol-") {
			continue
		}
		numStr := strings.TrimPrefix(name, "vol-")
		numStr = strings.TrimSuffix(strings.TrimSuffix(numStr, ".active"), ".sealed")
		num, convErr := strconv.Atoi(numStr)
		if convErr != nil {
			continue
		}
		if num > highest {
			highest = num
		}
		if strings.HasSuffix(name, ".active") {
			activeFound = num
		}
	}

	if activeFound >= 0 {
		if err := vm.trimTornTail(activeFound); err != nil {
			return err
		}
		f, err := os.OpenFile(vm.activePath(activeFound), os.O_APPEND|os.O_RDWR, 0o644)
		if err != nil {
			return errs.Wrap(errs.Storage, "reopen active volume", err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return errs.Wrap(errs.Storage, "stat active volume", err)
		}
		vm.current = f
		vm.currentNum = activeFound
		vm.currentLen = info.Size()
		return nil
	}

	next := highest + 1
	f, err := os.OpenFile(vm.activePath(next), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return errs.Wrap(errs.Storage, "create active volume", err)
	}
	vm.current = f
	vm.currentNum = next
	vm.currentLen = 0
	return nil
}

// trimTornTail validates that the last line of the active volume is valid
// JSON; an incomplete final line (from a crash mid-append) is truncated off.
func (vm *VolumeManager) trimTornTail(num int) error {
	path := vm.activePath(num)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.Storage, "read active volume for tail check", err)
	}
	if len(data) == 0 {
		return nil
	}

	lastNewline := strings.LastIndexByte(strings.TrimRight(string(data), "\n"), '\n')
	trimmed := strings.TrimRight(string(data), "\n")
	lastLineStart := 0
	if lastNewline >= 0 {
		lastLineStart = lastNewline + 1
	}
	lastLine := trimmed[lastLineStart:]
	if lastLine == "" {
		return nil
	}

	var probe types.Memory
	if json.Unmarshal([]byte(lastLine), &probe) == nil {
		return nil
	}

	vm.log.Warn().Str("volume", path).Msg("trimming torn tail line from archive volume")
	return os.Truncate(path, int64(lastLineStart))
}

// Append writes memory as a single JSONL line to the active volume,
// fsyncing before returning, and rotates to a fresh volume if this append
// crosses maxBytes. Returns the Address the caller should record.
func (vm *VolumeManager) Append(memory types.Memory) (Address, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	line, err := json.Marshal(memory)
	if err != nil {
		return Address{}, errs.Wrap(errs.InvalidArgument, "marshal memory for archive", err)
	}
	line = append(line, '\n')

	offset := vm.currentLen
	n, err := vm.current.Write(line)
	if err != nil {
		return Address{}, errs.Wrap(errs.Storage, "append to archive volume", err)
	}
	if err := vm.current.Sync(); err != nil {
		return Address{}, errs.Wrap(errs.Storage, "fsync archive volume", err)
	}
	vm.currentLen += int64(n)

	addr := Address{Volume: volumeName(vm.currentNum), Offset: offset, Length: int64(n)}

	if vm.currentLen >= vm.maxBytes {
		if err := vm.rotateLocked(); err != nil {
			return addr, err
		}
	}
	return addr, nil
}

func (vm *VolumeManager) rotateLocked() error {
	sealedNum := vm.currentNum
	if err := vm.current.Close(); err != nil {
		return errs.Wrap(errs.Storage, "close volume before seal", err)
	}
	if err := os.Rename(vm.activePath(sealedNum), vm.sealedPath(sealedNum)); err != nil {
		return errs.Wrap(errs.Storage, "seal volume", err)
	}
	vm.log.Info().Str("volume", volumeName(sealedNum)).Str("size", humanize.Bytes(uint64(vm.currentLen))).Msg("sealed archive volume")

	next := sealedNum + 1
	f, err := os.OpenFile(vm.activePath(next), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return errs.Wrap(errs.Storage, "open next volume", err)
	}
	vm.current = f
	vm.currentNum = next
	vm.currentLen = 0
	return nil
}

// Read fetches the Memory at addr by seeking directly into its volume file.
func (vm *VolumeManager) Read(addr Address) (types.Memory, error) {
	vm.mu.Lock()
	path := vm.volumePath(addr.Volume)
	vm.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return types.Memory{}, errs.Wrap(errs.Storage, "open volume for read", err)
	}
	defer f.Close()

	buf := make([]byte, addr.Length)
	if _, err := f.ReadAt(buf, addr.Offset); err != nil {
		return types.Memory{}, errs.Wrap(errs.Storage, "read at offset", err)
	}
	var m types.Memory
	if err := json.Unmarshal(buf, &m); err != nil {
		return types.Memory{}, errs.Wrap(errs.IndexCorrupted, "decode archived memory", err)
	}
	return m, nil
}

func (vm *VolumeManager) volumePath(name string) string {
	active := filepath.Join(vm.dir, name+".active")
	if _, err := os.Stat(active); err == nil {
		return active
	}
	return filepath.Join(vm.dir, name+".sealed")
}

// ScanAll iterates every Memory record across every volume, oldest volume
// first, for the raw-text fallback scan. visit returning false stops the
// scan early.
func (vm *VolumeManager) ScanAll(visit func(types.Memory) bool) error {
	entries, err := os.ReadDir(vm.dir)
	if err != nil {
		return errs.Wrap(errs.Storage, "list archive dir", err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "vol-") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(vm.dir, name)
		f, err := os.Open(path)
		if err != nil {
			return errs.Wrap(errs.Storage, "open volume during scan", err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			var m types.Memory
			if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
				continue
			}
			if !visit(m) {
				f.Close()
				return nil
			}
		}
		f.Close()
	}
	return nil
}

// Close closes the active volume file handle.
func (vm *VolumeManager) Close() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.current != nil {
		return vm.current.Close()
	}
	return nil
}
