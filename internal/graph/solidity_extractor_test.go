package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenContract = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.19;

import "./interfaces/IERC20.sol";
import {SafeMath as Math, Address} from "@openzeppelin/contracts/utils/math/SafeMath.sol";
import * as Utils from "../lib/Utils.sol";

/// @title A simple token
/// @notice Tracks balances and emits transfers
contract Token is IERC20 {
    mapping(address => uint256) public balances;
    uint256 public totalSupply;
    address private owner;
    uint256 internal constant CAP = 1000000;

    event Transfer(address indexed from, address indexed to, uint256 amount);

    error InsufficientBalance(uint256 requested, uint256 available);

    enum Phase { Setup, Open, Closed }

    struct Checkpoint {
        uint256 block;
        uint256 value;
    }

    modifier onlyOwner() {
        require(msg.sender == owner, "not owner");
        _;
    }

    constructor(uint256 supply) {
        totalSupply = supply;
        balances[msg.sender] = supply;
    }

    /// @notice Moves tokens between accounts
    function transfer(address to, uint256 amount) external returns (bool) {
        _move(msg.sender, to, amount);
        emit Transfer(msg.sender, to, amount);
        return true;
    }

    function _move(address from, address to, uint256 amount) internal {
        if (balances[from] < amount) {
            revert InsufficientBalance(amount, balances[from]);
        }
        balances[from] -= amount;
        balances[to] += amount;
    }

    receive() external payable {}
}

library Math64 {
    function clamp(uint256 v) internal pure returns (uint256) {
        return v;
    }
}

interface IVault {
    function deposit(uint256 amount) external;
}
`

func extractSolidity(t *testing.T, src string) *Extraction {
	t.Helper()
	e := NewExtractor()
	t.Cleanup(e.Close)
	return e.Extract(context.Background(), "token.sol", "/repo/token.sol", []byte(src), "solidity")
}

func TestExtractSolidityContracts(t *testing.T) {
	ext := extractSolidity(t, tokenContract)

	byName := map[string]*Symbol{}
	for _, s := range ext.Symbols {
		byName[s.Name] = s
	}

	token := byName["Token"]
	require.NotNil(t, token)
	assert.Equal(t, KindClass, token.Kind)
	assert.True(t, token.IsExported)
	assert.Contains(t, token.Documentation, "simple token")

	lib := byName["Math64"]
	require.NotNil(t, lib)
	assert.Contains(t, lib.Modifiers, "library")

	vault := byName["IVault"]
	require.NotNil(t, vault)
	assert.Equal(t, KindInterface, vault.Kind)
	assert.Contains(t, vault.Modifiers, "interface")
}

func TestExtractSolidityMembers(t *testing.T) {
	ext := extractSolidity(t, tokenContract)

	byName := map[string]*Symbol{}
	for _, s := range ext.Symbols {
		byName[s.Name] = s
	}
	tokenID := byName["Token"].ID

	transfer := byName["transfer"]
	require.NotNil(t, transfer)
	assert.Equal(t, KindMethod, transfer.Kind)
	assert.Equal(t, tokenID, transfer.ParentID)
	assert.True(t, transfer.IsExported)
	assert.Contains(t, transfer.Modifiers, "external")
	assert.Contains(t, transfer.Documentation, "Moves tokens")

	move := byName["_move"]
	require.NotNil(t, move)
	assert.False(t, move.IsExported)

	ctor := byName["constructor"]
	require.NotNil(t, ctor)
	assert.Equal(t, tokenID, ctor.ParentID)

	recv := byName["receive"]
	require.NotNil(t, recv)
	assert.Contains(t, recv.Modifiers, "payable")

	onlyOwner := byName["onlyOwner"]
	require.NotNil(t, onlyOwner)
	assert.Contains(t, onlyOwner.Modifiers, "modifier")

	transferEvent := byName["Transfer"]
	require.NotNil(t, transferEvent)
	assert.Equal(t, KindEvent, transferEvent.Kind)

	customError := byName["InsufficientBalance"]
	require.NotNil(t, customError)
	assert.Contains(t, customError.Modifiers, "error")

	balances := byName["balances"]
	require.NotNil(t, balances)
	assert.Equal(t, KindProperty, balances.Kind)
	assert.True(t, balances.IsExported)

	owner := byName["owner"]
	require.NotNil(t, owner)
	assert.False(t, owner.IsExported)

	cap := byName["CAP"]
	require.NotNil(t, cap)
	assert.Contains(t, cap.Modifiers, "constant")

	checkpoint := byName["Checkpoint"]
	require.NotNil(t, checkpoint)
	assert.Contains(t, checkpoint.Modifiers, "struct")
}

func TestExtractSolidityEnumMembers(t *testing.T) {
	ext := extractSolidity(t, tokenContract)

	var phase *Symbol
	members := map[string]*Symbol{}
	for _, s := range ext.Symbols {
		if s.Kind == KindEnum {
			phase = s
		}
		if s.Kind == KindEnumMember {
			members[s.Name] = s
		}
	}
	require.NotNil(t, phase)
	for _, name := range []string{"Setup", "Open", "Closed"} {
		m := members[name]
		require.NotNil(t, m, "enum member %s", name)
		assert.Equal(t, phase.ID, m.ParentID)
	}
}

func TestExtractSolidityImports(t *testing.T) {
	ext := extractSolidity(t, tokenContract)
	require.Len(t, ext.Dependencies, 3)

	plain := ext.Dependencies[0]
	assert.Equal(t, "./interfaces/IERC20.sol", plain.TargetModule)
	assert.False(t, plain.IsExternal)

	named := ext.Dependencies[1]
	assert.Equal(t, "@openzeppelin/contracts/utils/math/SafeMath.sol", named.TargetModule)
	assert.True(t, named.IsExternal)
	require.Len(t, named.Names, 2)
	assert.Equal(t, "SafeMath", named.Names[0].Name)
	assert.Equal(t, "Math", named.Names[0].Alias)
	assert.Equal(t, "Address", named.Names[1].Name)

	star := ext.Dependencies[2]
	assert.Equal(t, "../lib/Utils.sol", star.TargetModule)
	require.Len(t, star.Names, 1)
	assert.True(t, star.Names[0].IsNamespace)
	assert.Equal(t, "Utils", star.Names[0].Alias)
}

func TestExtractSolidityCalls(t *testing.T) {
	ext := extractSolidity(t, tokenContract)

	byName := map[string]*Symbol{}
	for _, s := range ext.Symbols {
		byName[s.Name] = s
	}

	var moveCall, requireCall *CallEdge
	for _, c := range ext.Calls {
		switch c.CalleeName {
		case "_move":
			moveCall = c
		case "require":
			requireCall = c
		}
	}

	require.NotNil(t, moveCall, "transfer must call _move")
	assert.Equal(t, byName["transfer"].ID, moveCall.CallerID)
	assert.Equal(t, byName["_move"].ID, moveCall.CalleeID)
	assert.Equal(t, 3, moveCall.ArgCount)

	require.NotNil(t, requireCall, "onlyOwner must call require")
	assert.Equal(t, byName["onlyOwner"].ID, requireCall.CallerID)
	assert.Equal(t, 2, requireCall.ArgCount)
}

func TestExtractSolidityConstructorCall(t *testing.T) {
	src := `contract Factory {
    function make() external returns (address) {
        Token t = new Token(100);
        return address(t);
    }
}

contract Token {
    constructor(uint256 supply) {}
}
`
	ext := extractSolidity(t, src)

	var ctorCall *CallEdge
	for _, c := range ext.Calls {
		if c.CallType == CallTypeConstructor {
			ctorCall = c
		}
	}
	require.NotNil(t, ctorCall)
	assert.Equal(t, "Token", ctorCall.CalleeName)
	assert.Equal(t, 1, ctorCall.ArgCount)
}

func TestExtractSolidityMethodCallReceiver(t *testing.T) {
	src := `contract Caller {
    function ping(address vaultAddr) external {
        IVault(vaultAddr).deposit(5);
        token.balances.length();
    }
}
`
	ext := extractSolidity(t, src)

	var deposit *CallEdge
	for _, c := range ext.Calls {
		if c.CalleeName == "deposit" {
			deposit = c
		}
	}
	require.NotNil(t, deposit)
	assert.True(t, deposit.IsMethodCall)
	assert.Equal(t, CallTypeMethod, deposit.CallType)
}
