package common

var Version = "dev" // is set during build process

// Reference gas amounts on L1, used to scale day-average swap fees into other
// transaction categories.
const (
	RefGasSwap        = 105_000
	RefGasEthTransfer = 21_000
)
