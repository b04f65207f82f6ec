package app

import (
	ledgerService "github.com/allisson/ledgerhook/internal/ledger/service"
)

// RPCClient returns the JSON-RPC client for the ledger node.
func (c *Container) RPCClient() (*ledgerService.JSONRPCClient, error) {
	c.rpcClientInit.Do(func() {
		ledgerMetrics, err := c.LedgerMetrics()
		if err != nil {
			c.storeError("rpcClient", err)
			return
		}
		c.rpcClient = ledgerService.NewJSONRPCClient(
			c.config.LedgerRPCURL,
			c.config.LedgerRPCTimeout,
			ledgerMetrics,
			c.Logger(),
		)
	})
	if err := c.loadError("rpcClient"); err != nil {
		return nil, err
	}
	return c.rpcClient, nil
}

// LedgerVerifier returns the finalized-commitment transaction verifier.
func (c *Container) LedgerVerifier() (*ledgerService.TransactionVerifier, error) {
	c.ledgerVerifierInit.Do(func() {
		rpcClient, err := c.RPCClient()
		if err != nil {
			c.storeError("ledgerVerifier", err)
			return
		}
		c.ledgerVerifier = ledgerService.NewTransactionVerifier(rpcClient, c.Logger())
	})
	if err := c.loadError("ledgerVerifier"); err != nil {
		return nil, err
	}
	return c.ledgerVerifier, nil
}
