package state

var (
	accountPrefix  = []byte("accounts/")
	escrowPrefix   = []byte("escrow/")
	walletPrefix   = []byte("multisig/wallet/")
	walletTxPrefix = []byte("multisig/tx/")
	englishPrefix  = []byte("auction/english/")
	dutchPrefix    = []byte("auction/dutch/")
	paymentPrefix  = []byte("payments/")
	pausePrefix    = []byte("pauses/")
)
