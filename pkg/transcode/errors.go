package transcode

import "errors"

var (
	ErrInterfaceMismatch    = errors.New("transcode: interface mismatch")
	ErrCodecNotFound        = errors.New("failed to find codec")
	ErrDecoderAlreadySetup  = errors.New("decoder already setup")
	ErrInvalidOption        = errors.New("invalid option")
	ErrUnsupportedMedia     = errors.New("unsupported media type")
	ErrInvalidEncoderConfig = errors.New("invalid encoder configuration")

	ErrFormatMismatch = errors.New("audio fifo: frame format does not match fifo format")
	ErrFifoUnderrun   = errors.New("audio fifo: short read after reporting enough samples")
	ErrHardwareFrame  = errors.New("frame is in device memory, download it to host first")

	ErrDemuxerOpen       = errors.New("demuxer already opened")
	ErrDemuxerNotOpen    = errors.New("demuxer not opened")
	ErrInvalidStream     = errors.New("invalid stream index")
	ErrMuxerInitialized  = errors.New("muxer already initialized")
	ErrMuxerNotInit      = errors.New("muxer not initialized")
	ErrMuxerOpen         = errors.New("muxer already opened")
	ErrMuxerNotOpen      = errors.New("muxer not opened")
	ErrMissingOutputSpec = errors.New("output needs a url or a writer with a format")

	ErrInvalidState        = errors.New("transcoder: invalid state for operation")
	ErrStreamAlreadyRouted = errors.New("transcoder: stream already routed")
	ErrLayoutMismatch      = errors.New("transcoder: input stream layout differs from routed layout")
	ErrTranscoderFailed    = errors.New("transcoder: previous run failed")
)
