// Package nvme defines the NVMe wire constants and completion-status
// decoding the translator needs: admin/I/O opcodes, CNS selectors, feature
// and log-page identifiers, and the bit layout of the completion status
// DWord. Structures here are decoded with encoding/binary rather than the
// unsafe-pointer casts dswarbrick/smart uses, since the translator only
// ever sees bytes handed back from an NvmeTransport, never a raw mmap'd
// completion queue.
package nvme

/*
 * NVMe Admin Command opcodes (NVMe Base Spec figure "Admin Command Set").
 */
const (
	AdminDeleteIOSubmissionQueue = 0x00
	AdminCreateIOSubmissionQueue = 0x01
	AdminGetLogPage              = 0x02
	AdminDeleteIOCompletionQueue = 0x04
	AdminCreateIOCompletionQueue = 0x05
	AdminIdentify                = 0x06
	AdminAbort                   = 0x08
	AdminSetFeatures             = 0x09
	AdminGetFeatures             = 0x0a
	AdminAsyncEventRequest       = 0x0c
	AdminNamespaceManagement     = 0x0d
	AdminFirmwareCommit          = 0x10
	AdminFirmwareImageDownload   = 0x11
	AdminDeviceSelfTest          = 0x14
	AdminNamespaceAttachment     = 0x15
	AdminKeepAlive               = 0x18
	AdminDirectiveSend           = 0x19
	AdminDirectiveReceive        = 0x1a
	AdminVirtualizationMgmt      = 0x1c
	AdminNVMeMiSend              = 0x1d
	AdminNVMeMiReceive           = 0x1e
	AdminDoorbellBufferConfig    = 0x7c
	AdminFormatNVM               = 0x80
	AdminSecuritySend            = 0x81
	AdminSecurityReceive         = 0x82
	AdminSanitize                = 0x84
)

// NVMe I/O Command Set opcodes.
const (
	IOFlush        = 0x00
	IOWrite        = 0x01
	IORead         = 0x02
	IOWriteUncor   = 0x04
	IOCompare      = 0x05
	IOWriteZeroes  = 0x08
	IODatasetMgmt  = 0x09
	IOVerify       = 0x0c
	IOReservationRegister = 0x0d
	IOReservationReport   = 0x0e
	IOReservationAcquire  = 0x11
	IOReservationRelease  = 0x15
	IOCopy         = 0x19
)

// Identify CNS (Controller or Namespace Structure) selector values.
const (
	CNSIdentifyNamespace  = 0x00
	CNSIdentifyController = 0x01
	CNSActiveNamespaceIDs = 0x02
)

// Feature identifiers (Get/Set Features, NVMe Base Spec figure "Feature Identifiers").
const (
	FeatureArbitration           = 0x01
	FeaturePowerManagement       = 0x02
	FeatureLBARangeType          = 0x03
	FeatureTemperatureThreshold  = 0x04
	FeatureErrorRecovery         = 0x05
	FeatureVolatileWriteCache    = 0x06
	FeatureNumberOfQueues        = 0x07
	FeatureInterruptCoalescing   = 0x08
	FeatureInterruptVectorConfig = 0x09
	FeatureWriteAtomicity        = 0x0a
	FeatureAsyncEventConfig      = 0x0b
)

// Read/Write/Verify/Compare command DWord12 bits (NVMe Base Spec "Read
// command"/"Write command"): limited retry, force unit access, and the
// PRINFO nibble (PRACT + 3 PRCHK bits).
const (
	RWLimitedRetry    = 1 << 31
	RWForceUnitAccess = 1 << 30
	RWPRACT           = 1 << 29
	RWPRCHKGuard      = 1 << 28
	RWPRCHKAppTag     = 1 << 27
	RWPRCHKRefTag     = 1 << 26
)

// Dataset Management command DWord11 bits and per-range attributes.
const (
	DSMIdentifyDeallocate = 1 << 2
)

// Log page identifiers.
const (
	LogErrorInformation     = 0x01
	LogSMARTHealth          = 0x02
	LogFirmwareSlot         = 0x03
	LogDeviceSelfTest       = 0x06
	LogSanitizeStatus       = 0x81
	LogRotationalMedia      = 0x16
)

// Sanitize log sstat[2:0] status values (NVMe Base Spec "Sanitize Status").
const (
	SanitizeStatusNeverSanitized = 0x1
	SanitizeStatusCompleted      = 0x2
	SanitizeStatusInProgress     = 0x3
	SanitizeStatusFailed         = 0x4
)

// Status Code Type (SCT) values, bits [27:25] of the completion status DWord.
const (
	SCTGeneric          = 0x0
	SCTCommandSpecific  = 0x1
	SCTMediaIntegrity   = 0x2
	SCTPathRelated      = 0x3
	SCTVendorSpecific   = 0x7
)

// Generic (SCT=0) status codes.
const (
	SCInvalidOpcode          = 0x00
	SCInvalidField           = 0x01
	SCDataTransferError      = 0x04
	SCAbortedPowerLoss       = 0x05
	SCInternalError          = 0x06
	SCAbortRequested         = 0x07
	SCAbortSQDeletion        = 0x08
	SCAbortFailedFused       = 0x09
	SCAbortMissingFused      = 0x0a
	SCLBAOutOfRange          = 0x80
	SCNamespaceNotReady      = 0x82
	SCFormatInProgress       = 0x84
	SCSanitizeInProgress     = 0x1d
	SCSanitizeFailed         = 0x1e
)

// Command-specific (SCT=1) status codes.
const (
	SCInvalidFormat           = 0x0a
	SCSelfTestInProgress      = 0x1d
	SCConflictingAttributes   = 0x80
	SCWriteToROrange          = 0x84
)

// Media and data integrity (SCT=2) status codes.
const (
	SCWriteFault           = 0x80
	SCUnrecoveredRead      = 0x81
	SCGuardCheck           = 0x82
	SCApplicationTagCheck  = 0x83
	SCReferenceTagCheck    = 0x84
	SCCompareFailure       = 0x85
	SCAccessDenied         = 0x86
)

// StatusDword is a decoded NVMe completion status DWord (CQE DW3 bits
// [31:17]): DNR, More, SCT, SC. Bit layout per NVMe Base Spec "Completion
// Queue Entry": bit 31 DNR, bit 30 More, bits [27:25] SCT, bits [24:17] SC.
type StatusDword uint32

func (s StatusDword) DNR() bool       { return s&(1<<31) != 0 }
func (s StatusDword) More() bool      { return s&(1<<30) != 0 }
func (s StatusDword) SCT() uint8      { return uint8((s >> 25) & 0x7) }
func (s StatusDword) SC() uint8       { return uint8((s >> 17) & 0xff) }
func (s StatusDword) Success() bool   { return s.SCT() == 0 && s.SC() == 0 }

// ResetKind selects the scope of a transport-level reset.
type ResetKind int

const (
	ResetController ResetKind = 1
	ResetSubsystem  ResetKind = 2
)
