package squashfs

const (
	defaultCompressionLRUSize = 256
	defaultMaxSymlinkDepth    = 100
)

// openConfig collects the settings an Option can adjust before Open parses
// a source into an Image. It is built up from defaults, then mutated by
// each Option in order.
type openConfig struct {
	inoOfft uint64

	mapper          Mapper
	memSource       []byte
	mapperBlockSize int

	sourceSize int64

	compressionLRUSize int
	maxSymlinkDepth    int
}

func newOpenConfig() *openConfig {
	return &openConfig{
		mapperBlockSize:    defaultMapperBlockSize,
		compressionLRUSize: defaultCompressionLRUSize,
		maxSymlinkDepth:    defaultMaxSymlinkDepth,
	}
}

// Option customizes how Open maps and interprets a squashfs source.
type Option func(cfg *openConfig) error

// InodeOffset records inoOfft on the opened image's superblock. No inode
// number reported by the image (Inode.Ino, DirectoryIterator.InodeNumber,
// the FUSE entries) is shifted by it.
func InodeOffset(inoOfft uint64) Option {
	return func(cfg *openConfig) error {
		cfg.inoOfft = inoOfft
		return nil
	}
}

// WithMapper overrides the default file/URL/memory source selection with an
// explicit Mapper  implementation, for callers supplying their own
// byte-addressable backing store.
func WithMapper(m Mapper) Option {
	return func(cfg *openConfig) error {
		cfg.mapper = m
		return nil
	}
}

// WithMemorySource opens an image directly out of an in-memory byte slice
// rather than a file path or URL.
func WithMemorySource(data []byte) Option {
	return func(cfg *openConfig) error {
		cfg.memSource = data
		return nil
	}
}

// WithMapperBlockSize sets the range-request granularity used by the URL
// mapper (and its LRU cache key width). It has no effect on file or memory
// sources.
func WithMapperBlockSize(size int) Option {
	return func(cfg *openConfig) error {
		if size > 0 {
			cfg.mapperBlockSize = size
		}
		return nil
	}
}

// WithCompressionLRUSize bounds the number of decoded blocks the
// ExtractManager  keeps cached at once.
func WithCompressionLRUSize(n int) Option {
	return func(cfg *openConfig) error {
		if n > 0 {
			cfg.compressionLRUSize = n
		}
		return nil
	}
}

// WithMaxSymlinkDepth bounds how many symlink hops PathResolver  will
// follow before reporting ErrSymlinkLoop.
func WithMaxSymlinkDepth(n int) Option {
	return func(cfg *openConfig) error {
		if n > 0 {
			cfg.maxSymlinkDepth = n
		}
		return nil
	}
}

// WithSourceSize tells Open the exact size of the source in advance,
// skipping a Stat/HEAD call. Mostly useful with WithMapper, where the
// caller's Mapper already knows its own size and Open would otherwise have
// no other way to learn it before constructing one.
func WithSourceSize(size int64) Option {
	return func(cfg *openConfig) error {
		cfg.sourceSize = size
		return nil
	}
}
