package core

import "sync"

// CommandHandler decodes its own arguments from the front of data.
type CommandHandler func(data *[]byte) error

// Command is one dictionary entry. Responses have a nil Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "seconds=%u mode=%c"
	Handler CommandHandler
}

// CommandRegistry assigns IDs in registration order and renders the text
// dictionary the host downloads through identify.
type CommandRegistry struct {
	mu         sync.RWMutex
	commands   []*Command
	nameToID   map[string]uint16
	dictionary []byte
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{nameToID: make(map[string]uint16)}
}

// Register adds a command and returns its ID. Registering a name twice
// returns the existing ID.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{ID: id, Name: name, Format: format, Handler: handler})
	r.nameToID[name] = id

	r.dictionary = append(r.dictionary, name...)
	if format != "" {
		r.dictionary = append(r.dictionary, ' ')
		r.dictionary = append(r.dictionary, format...)
	}
	r.dictionary = append(r.dictionary, '\n')
	return id
}

// RegisterResponse adds a device-to-host message.
func (r *CommandRegistry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered entries.
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered under cmdID.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		return opErr(BadArgument, "command "+utoa(uint32(cmdID)), nil)
	}
	return cmd.Handler(data)
}

// Dictionary is one "name format" line per entry, in ID order.
func (r *CommandRegistry) Dictionary() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dictionary
}

// Chunk returns up to count dictionary bytes starting at offset. An empty
// chunk tells the host it has the whole dictionary.
func (r *CommandRegistry) Chunk(offset uint32, count uint8) []byte {
	dict := r.Dictionary()
	if offset >= uint32(len(dict)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(dict)) {
		end = uint32(len(dict))
	}
	return dict[offset:end]
}
